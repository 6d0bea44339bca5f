package model

// PreviewRequest запрос превью страницы.
type PreviewRequest struct {
	URL string `json:"url" validate:"required"`
}

// Preview краткое описание целевой страницы.
type Preview struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Favicon     string `json:"favicon"`
}

const (
	NoTitle       = "No title found"
	NoDescription = "No description found"
)

// EmptyPreview превью, которое отдаётся, когда страницу получить не удалось.
func EmptyPreview() Preview {
	return Preview{Title: NoTitle, Description: NoDescription}
}

// WithDefaults подставляет значения по умолчанию вместо пустых полей.
func (p Preview) WithDefaults() Preview {
	if p.Title == "" {
		p.Title = NoTitle
	}
	if p.Description == "" {
		p.Description = NoDescription
	}
	return p
}
