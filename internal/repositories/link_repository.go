package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Totarae/shortlink/internal/database"
	"github.com/Totarae/shortlink/internal/model"
	"github.com/jackc/pgx/v5"
)

const linkColumns = `id, code, target_url, created_at, expires_at, visit_count`

// LinkRepository хранилище ссылок в PostgreSQL.
// Уникальность кода обеспечивает ограничение links_code_key,
// счётчик переходов увеличивается одним UPDATE.
type LinkRepository struct {
	DB *database.DB
}

// NewLinkRepository создаёт новый экземпляр LinkRepository.
func NewLinkRepository(db *database.DB) *LinkRepository {
	return &LinkRepository{DB: db}
}

// Insert сохраняет запись. Если код уже занят, возвращает model.ErrCollision.
func (r *LinkRepository) Insert(ctx context.Context, rec *model.LinkRecord) error {
	query := `INSERT INTO links (id, code, target_url, created_at, expires_at, visit_count)
              VALUES ($1, $2, $3, $4, $5, 0)
              ON CONFLICT (code) DO NOTHING
              RETURNING id`

	err := r.DB.Pool.QueryRow(ctx, query, rec.ID, rec.Code, rec.TargetURL, rec.CreatedAt, rec.ExpiresAt).Scan(&rec.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Конфликт по code: строка не вставлена
			return model.ErrCollision
		}
		return fmt.Errorf("database insert error: %w", err)
	}
	return nil
}

// FindByCode извлекает запись по короткому коду.
func (r *LinkRepository) FindByCode(ctx context.Context, code string) (*model.LinkRecord, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE code = $1`
	rec, err := scanLink(r.DB.Pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return rec, nil
}

// IncrementVisit атомарно увеличивает visit_count и возвращает запись после обновления.
func (r *LinkRepository) IncrementVisit(ctx context.Context, code string) (*model.LinkRecord, error) {
	query := `UPDATE links SET visit_count = visit_count + 1
              WHERE code = $1
              RETURNING ` + linkColumns
	rec, err := scanLink(r.DB.Pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to increment visits: %w", err)
	}
	return rec, nil
}

// ListAll возвращает все ссылки, новые первыми.
func (r *LinkRepository) ListAll(ctx context.Context) ([]*model.LinkRecord, error) {
	query := `SELECT ` + linkColumns + ` FROM links ORDER BY created_at DESC, code`
	rows, err := r.DB.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	results := make([]*model.LinkRecord, 0)
	for rows.Next() {
		rec, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return results, nil
}

// DeleteExpired удаляет ссылки с expires_at раньше now и возвращает их количество.
func (r *LinkRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM links WHERE expires_at IS NOT NULL AND expires_at < $1`
	tag, err := r.DB.Pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired links: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping проверяет доступность базы данных.
func (r *LinkRepository) Ping(ctx context.Context) error {
	return r.DB.Ping(ctx)
}

func scanLink(row pgx.Row) (*model.LinkRecord, error) {
	rec := &model.LinkRecord{}
	var expires *time.Time
	if err := row.Scan(&rec.ID, &rec.Code, &rec.TargetURL, &rec.CreatedAt, &expires, &rec.VisitCount); err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	if expires != nil {
		t := expires.UTC()
		rec.ExpiresAt = &t
	}
	return rec, nil
}
