package model

import "time"

// MaxTTLHours верхняя граница срока жизни ссылки (100 лет).
// Значение держит created_at + ttl далеко от переполнения time.Duration.
const MaxTTLHours = 24 * 365 * 100

// ShortenRequest представляет структуру запроса на сокращение URL.
type ShortenRequest struct {
	OriginalURL string `json:"original_url" validate:"required"`
	TTLHours    *int   `json:"ttl_hours,omitempty" validate:"omitnil,gt=0,lte=876000"`
}

// ShortenResponse представляет структуру ответа с сокращённым URL.
type ShortenResponse struct {
	Code      string     `json:"code"`
	ShortURL  string     `json:"short_url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// LinkSummary строка административного списка ссылок.
type LinkSummary struct {
	Code       string    `json:"code"`
	TargetURL  string    `json:"target_url"`
	VisitCount int64     `json:"visit_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewLinkSummary собирает строку списка из записи.
func NewLinkSummary(l *LinkRecord) LinkSummary {
	return LinkSummary{
		Code:       l.Code,
		TargetURL:  l.TargetURL,
		VisitCount: l.VisitCount,
		CreatedAt:  l.CreatedAt,
	}
}

// MessageResponse тело ответа с текстом ошибки.
type MessageResponse struct {
	Message string `json:"message"`
}
