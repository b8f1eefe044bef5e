package hipchat

// Card is a rich room notification attachment.
type Card struct {
	Style       string            `json:"style"`
	URL         string            `json:"url,omitempty"`
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Images      map[string]string `json:"images"`
	Icon        *CardIcon         `json:"icon,omitempty"`
	Metadata    map[string]string `json:"metadata"`
	Attributes  []CardAttribute   `json:"attributes,omitempty"`
	Activity    *CardActivity     `json:"activity,omitempty"`
	HTML        string            `json:"html,omitempty"`
}

type CardIcon struct {
	URL string `json:"url"`
}

type CardAttribute struct {
	Label string             `json:"label"`
	Value CardAttributeValue `json:"value"`
}

type CardAttributeValue struct {
	Label string `json:"label"`
	Style string `json:"style,omitempty"`
}

type CardActivity struct {
	HTML string `json:"html"`
}

const CardStyleApplication = "application"
