package wizard

import (
	"embed"
	"html/template"
	"io"

	"github.com/kiranshivaraju/roombridge/pkg/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templateFS, "templates/configure.html"))

// Page is everything the configure page shows. At most one of GrantForm and
// ProjectForm is set.
type Page struct {
	Tenant        *models.Tenant
	CurrentUser   *models.User
	LoginURL      string
	Action        string
	GrantForm     *GrantForm
	ProjectForm   *ProjectForm
	AvailableOrgs []*models.Organization
	SignedRequest string
	Debug         bool
}

// Render writes the configure page.
func Render(w io.Writer, p Page) error {
	return pageTmpl.ExecuteTemplate(w, "configure.html", p)
}
