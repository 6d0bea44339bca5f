package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// LinkRecord хранимая запись короткой ссылки.
type LinkRecord struct {
	ID         uuid.UUID  `json:"id"`
	Code       string     `json:"code"`
	TargetURL  string     `json:"target_url"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"` // nil означает бессрочную ссылку
	VisitCount int64      `json:"visit_count"`
}

// ExpiredAt сообщает, истёк ли срок жизни записи к моменту now
// (expires_at строго раньше now). Запись без ExpiresAt не истекает никогда.
func (l *LinkRecord) ExpiredAt(now time.Time) bool {
	if l.ExpiresAt == nil {
		return false
	}
	return now.After(*l.ExpiresAt)
}

// Clone возвращает независимую копию записи.
func (l *LinkRecord) Clone() *LinkRecord {
	c := *l
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// Outcome итог разрешения короткого кода.
type Outcome int

const (
	OutcomeResolved Outcome = iota
	OutcomeNotFound
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeResolved:
		return "resolved"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Resolution результат работы резолвера. Record заполнен только для OutcomeResolved.
type Resolution struct {
	Outcome Outcome
	Record  *LinkRecord
}

// SortNewestFirst упорядочивает записи по created_at по убыванию, при равенстве по коду.
func SortNewestFirst(recs []*LinkRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].Code < recs[j].Code
		}
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
}
