package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/Totarae/shortlink/internal/metrics"
	"github.com/Totarae/shortlink/internal/model"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:generate mockgen -source=shortener.go -destination=mocks/mock_shortener.go -package=mocks

var ttlTooLong = fmt.Sprintf("must not exceed %d hours", model.MaxTTLHours)

// DefaultMaxAttempts число попыток подобрать свободный код.
const DefaultMaxAttempts = 5

// Repository хранилище ссылок. Insert и IncrementVisit обязаны быть атомарными
// на стороне хранилища: проверка уникальности не делается отдельным запросом.
type Repository interface {
	Insert(ctx context.Context, rec *model.LinkRecord) error
	FindByCode(ctx context.Context, code string) (*model.LinkRecord, error)
	IncrementVisit(ctx context.Context, code string) (*model.LinkRecord, error)
	ListAll(ctx context.Context) ([]*model.LinkRecord, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// CodeGenerator источник коротких кодов.
type CodeGenerator interface {
	Generate() string
}

// PreviewFetcher получает превью страницы по URL.
type PreviewFetcher interface {
	Fetch(ctx context.Context, rawURL string) (model.Preview, error)
}

type ShortenerService struct {
	Repo        Repository
	Generator   CodeGenerator
	Previewer   PreviewFetcher
	Logger      *zap.Logger
	BaseURL     string
	MaxAttempts int
	Now         func() time.Time

	validate *validator.Validate
}

// Option настраивает ShortenerService.
type Option func(*ShortenerService)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *ShortenerService) { s.Now = now }
}

// WithMaxAttempts задаёт число попыток генерации кода.
func WithMaxAttempts(n int) Option {
	return func(s *ShortenerService) {
		if n > 0 {
			s.MaxAttempts = n
		}
	}
}

// WithPreviewFetcher подключает загрузчик превью.
func WithPreviewFetcher(p PreviewFetcher) Option {
	return func(s *ShortenerService) { s.Previewer = p }
}

func NewShortenerService(repo Repository, gen CodeGenerator, logger *zap.Logger, baseURL string, opts ...Option) *ShortenerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ShortenerService{
		Repo:        repo,
		Generator:   gen,
		Logger:      logger,
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		MaxAttempts: DefaultMaxAttempts,
		Now:         time.Now,
		validate:    newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// now текущее время в UTC, усечённое до микросекунд, как его хранит БД.
func (s *ShortenerService) now() time.Time {
	return s.Now().UTC().Truncate(time.Microsecond)
}

// ShortURL полный короткий адрес для кода.
func (s *ShortenerService) ShortURL(code string) string {
	return fmt.Sprintf("%s/%s", s.BaseURL, code)
}

// Shorten проверяет запрос и создаёт ссылку.
func (s *ShortenerService) Shorten(ctx context.Context, req model.ShortenRequest) (*model.ShortenResponse, error) {
	req.OriginalURL = strings.TrimSpace(req.OriginalURL)
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	rec, err := s.CreateLink(ctx, req.OriginalURL, req.TTLHours)
	if err != nil {
		return nil, err
	}
	return &model.ShortenResponse{
		Code:      rec.Code,
		ShortURL:  s.ShortURL(rec.Code),
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// CreateLink генерирует код и сохраняет запись, повторяя попытку при коллизии.
// После MaxAttempts коллизий подряд возвращает model.ErrExhaustedRetries.
func (s *ShortenerService) CreateLink(ctx context.Context, targetURL string, ttlHours *int) (*model.LinkRecord, error) {
	if strings.TrimSpace(targetURL) == "" {
		return nil, model.NewValidationError("original_url", "URL is required")
	}
	if ttlHours != nil && *ttlHours <= 0 {
		return nil, model.NewValidationError("ttl_hours", "must be a positive number of hours")
	}
	if ttlHours != nil && *ttlHours > model.MaxTTLHours {
		return nil, model.NewValidationError("ttl_hours", ttlTooLong)
	}

	created := s.now()
	var expires *time.Time
	if ttlHours != nil {
		t := created.Add(time.Duration(*ttlHours) * time.Hour)
		expires = &t
	}

	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		rec := &model.LinkRecord{
			ID:        uuid.New(),
			Code:      s.Generator.Generate(),
			TargetURL: targetURL,
			CreatedAt: created,
			ExpiresAt: expires,
		}

		err := s.Repo.Insert(ctx, rec)
		if err == nil {
			metrics.LinksCreated.Inc()
			s.Logger.Debug("link created", zap.String("code", rec.Code), zap.Int("attempt", attempt))
			return rec, nil
		}
		if !errors.Is(err, model.ErrCollision) {
			s.Logger.Error("failed to save link", zap.Error(err))
			return nil, err
		}

		metrics.CodeCollisions.Inc()
		s.Logger.Warn("short code collision", zap.String("code", rec.Code), zap.Int("attempt", attempt))
	}

	s.Logger.Error("short code attempts exhausted", zap.Int("attempts", s.MaxAttempts))
	return nil, fmt.Errorf("%w after %d attempts", model.ErrExhaustedRetries, s.MaxAttempts)
}

// Resolve находит ссылку по коду. Срок жизни проверяется до учёта перехода,
// поэтому истёкшая ссылка не увеличивает счётчик и не удаляется здесь.
func (s *ShortenerService) Resolve(ctx context.Context, code string) (model.Resolution, error) {
	if code == "" {
		return s.outcome(model.Resolution{Outcome: model.OutcomeNotFound}), nil
	}

	rec, err := s.Repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return s.outcome(model.Resolution{Outcome: model.OutcomeNotFound}), nil
		}
		return model.Resolution{}, err
	}

	if rec.ExpiredAt(s.Now().UTC()) {
		return s.outcome(model.Resolution{Outcome: model.OutcomeExpired}), nil
	}

	updated, err := s.Repo.IncrementVisit(ctx, code)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			// запись удалили между чтением и инкрементом
			return s.outcome(model.Resolution{Outcome: model.OutcomeNotFound}), nil
		}
		return model.Resolution{}, err
	}
	return s.outcome(model.Resolution{Outcome: model.OutcomeResolved, Record: updated}), nil
}

func (s *ShortenerService) outcome(r model.Resolution) model.Resolution {
	metrics.Resolutions.WithLabelValues(r.Outcome.String()).Inc()
	return r
}

// List возвращает ссылки, новые первыми. Непустой search оставляет только записи,
// у которых код или целевой URL содержат подстроку без учёта регистра.
func (s *ShortenerService) List(ctx context.Context, search string) ([]*model.LinkRecord, error) {
	all, err := s.Repo.ListAll(ctx)
	if err != nil {
		s.Logger.Error("failed to list links", zap.Error(err))
		return nil, err
	}

	term := strings.ToLower(strings.TrimSpace(search))
	if term == "" {
		return all, nil
	}

	filtered := make([]*model.LinkRecord, 0, len(all))
	for _, rec := range all {
		if strings.Contains(strings.ToLower(rec.Code), term) ||
			strings.Contains(strings.ToLower(rec.TargetURL), term) {
			filtered = append(filtered, rec)
		}
	}
	return filtered, nil
}

// Reap удаляет ссылки, истёкшие к моменту now.
func (s *ShortenerService) Reap(ctx context.Context, now time.Time) (int64, error) {
	deleted, err := s.Repo.DeleteExpired(ctx, now.UTC())
	if err != nil {
		return 0, err
	}
	metrics.ReapedLinks.Add(float64(deleted))
	return deleted, nil
}

// Preview возвращает превью страницы. Ошибки загрузки не пробрасываются:
// вместо них отдаётся превью со значениями по умолчанию.
func (s *ShortenerService) Preview(ctx context.Context, req model.PreviewRequest) (model.Preview, error) {
	req.URL = strings.TrimSpace(req.URL)
	if err := s.validateStruct(req); err != nil {
		return model.Preview{}, err
	}
	if s.Previewer == nil {
		return model.EmptyPreview(), nil
	}

	p, err := s.Previewer.Fetch(ctx, req.URL)
	if err != nil {
		s.Logger.Info("preview unavailable", zap.String("url", req.URL), zap.Error(err))
		return model.EmptyPreview(), nil
	}
	return p.WithDefaults(), nil
}

// Ping проверяет доступность хранилища.
func (s *ShortenerService) Ping(ctx context.Context) error {
	return s.Repo.Ping(ctx)
}

func (s *ShortenerService) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return model.NewValidationError("", err.Error())
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		if fe.Field() == "original_url" || fe.Field() == "url" {
			return model.NewValidationError(fe.Field(), "URL is required")
		}
		return model.NewValidationError(fe.Field(), "is required")
	case "gt":
		return model.NewValidationError(fe.Field(), "must be a positive number of hours")
	case "lte":
		return model.NewValidationError(fe.Field(), ttlTooLong)
	default:
		return model.NewValidationError(fe.Field(), "is invalid")
	}
}
