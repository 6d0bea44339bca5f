package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Totarae/shortlink/internal/model"
	"github.com/Totarae/shortlink/internal/service"
	"github.com/Totarae/shortlink/internal/service/mocks"
	"github.com/Totarae/shortlink/internal/storage"
	"github.com/Totarae/shortlink/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var start = time.Date(2025, 5, 10, 9, 30, 0, 0, time.UTC)

// fakeClock управляемые часы для тестов.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newMemoryService(t *testing.T) (*service.ShortenerService, *fakeClock) {
	t.Helper()
	store, err := storage.New("", nil)
	require.NoError(t, err)
	clock := &fakeClock{now: start}
	svc := service.NewShortenerService(store, util.NewCodeGenerator(6), nil, "http://localhost:8080/",
		service.WithClock(clock.Now))
	return svc, clock
}

func hours(n int) *int { return &n }

func TestShorten_RoundTrip(t *testing.T) {
	svc, _ := newMemoryService(t)
	ctx := context.Background()

	resp, err := svc.Shorten(ctx, model.ShortenRequest{OriginalURL: "https://go.dev/doc"})
	require.NoError(t, err)
	assert.Len(t, resp.Code, 6)
	assert.Equal(t, "http://localhost:8080/"+resp.Code, resp.ShortURL)
	assert.Nil(t, resp.ExpiresAt)

	res, err := svc.Resolve(ctx, resp.Code)
	require.NoError(t, err)
	require.Equal(t, model.OutcomeResolved, res.Outcome)
	assert.Equal(t, "https://go.dev/doc", res.Record.TargetURL)
	assert.Equal(t, int64(1), res.Record.VisitCount)
}

func TestShorten_Validation(t *testing.T) {
	svc, _ := newMemoryService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   model.ShortenRequest
		field string
	}{
		{name: "empty url", req: model.ShortenRequest{}, field: "original_url"},
		{name: "blank url", req: model.ShortenRequest{OriginalURL: "   "}, field: "original_url"},
		{name: "zero ttl", req: model.ShortenRequest{OriginalURL: "https://a.b", TTLHours: hours(0)}, field: "ttl_hours"},
		{name: "negative ttl", req: model.ShortenRequest{OriginalURL: "https://a.b", TTLHours: hours(-5)}, field: "ttl_hours"},
		{name: "ttl above bound", req: model.ShortenRequest{OriginalURL: "https://a.b", TTLHours: hours(model.MaxTTLHours + 1)}, field: "ttl_hours"},
		{name: "ttl overflows duration", req: model.ShortenRequest{OriginalURL: "https://a.b", TTLHours: hours(3000000)}, field: "ttl_hours"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.Shorten(ctx, tt.req)
			assert.Nil(t, resp)
			require.ErrorIs(t, err, model.ErrValidation)

			var verr *model.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	list, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateLink_ValidationWithoutStorage(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	gen := mocks.NewMockCodeGenerator(ctrl)
	svc := service.NewShortenerService(repo, gen, nil, "http://s")

	_, err := svc.CreateLink(context.Background(), "", nil)
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = svc.CreateLink(context.Background(), "https://a.b", hours(0))
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = svc.CreateLink(context.Background(), "https://a.b", hours(1<<40))
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestShorten_WithTTL(t *testing.T) {
	svc, _ := newMemoryService(t)

	resp, err := svc.Shorten(context.Background(), model.ShortenRequest{OriginalURL: "https://go.dev", TTLHours: hours(24)})
	require.NoError(t, err)
	require.NotNil(t, resp.ExpiresAt)
	assert.Equal(t, start.Add(24*time.Hour), *resp.ExpiresAt)
}

func TestShorten_MaxTTL(t *testing.T) {
	svc, _ := newMemoryService(t)

	resp, err := svc.Shorten(context.Background(), model.ShortenRequest{OriginalURL: "https://go.dev", TTLHours: hours(model.MaxTTLHours)})
	require.NoError(t, err)
	require.NotNil(t, resp.ExpiresAt)
	assert.Equal(t, 2125, resp.ExpiresAt.Year())
	assert.True(t, resp.ExpiresAt.After(start))

	_, err = svc.Shorten(context.Background(), model.ShortenRequest{OriginalURL: "https://go.dev", TTLHours: hours(model.MaxTTLHours + 1)})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must not exceed 876000 hours", verr.Message)
}

func TestCreateLink_RetriesOnCollision(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	gen := mocks.NewMockCodeGenerator(ctrl)

	gomock.InOrder(
		gen.EXPECT().Generate().Return("aaaaaa"),
		repo.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(model.ErrCollision),
		gen.EXPECT().Generate().Return("bbbbbb"),
		repo.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(model.ErrCollision),
		gen.EXPECT().Generate().Return("cccccc"),
		repo.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, rec *model.LinkRecord) error {
				assert.Equal(t, "cccccc", rec.Code)
				assert.Equal(t, "https://example.com", rec.TargetURL)
				assert.Zero(t, rec.VisitCount)
				return nil
			}),
	)

	svc := service.NewShortenerService(repo, gen, nil, "http://s")
	rec, err := svc.CreateLink(context.Background(), "https://example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, "cccccc", rec.Code)
}

func TestCreateLink_ExhaustedRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	gen := mocks.NewMockCodeGenerator(ctrl)

	gen.EXPECT().Generate().Return("same22").Times(3)
	repo.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(model.ErrCollision).Times(3)

	svc := service.NewShortenerService(repo, gen, nil, "http://s", service.WithMaxAttempts(3))
	rec, err := svc.CreateLink(context.Background(), "https://example.com", nil)
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, model.ErrExhaustedRetries)
}

func TestCreateLink_DefaultAttemptBound(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	gen := mocks.NewMockCodeGenerator(ctrl)

	gen.EXPECT().Generate().Return("same22").Times(service.DefaultMaxAttempts)
	repo.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(model.ErrCollision).Times(service.DefaultMaxAttempts)

	svc := service.NewShortenerService(repo, gen, nil, "http://s")
	_, err := svc.CreateLink(context.Background(), "https://example.com", nil)
	assert.ErrorIs(t, err, model.ErrExhaustedRetries)
}

// Ошибка хранилища не повторяется и не маскируется под коллизию.
func TestCreateLink_StorageError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	gen := mocks.NewMockCodeGenerator(ctrl)
	storageErr := errors.New("connection refused")

	gen.EXPECT().Generate().Return("abcdef")
	repo.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(storageErr)

	svc := service.NewShortenerService(repo, gen, nil, "http://s")
	_, err := svc.CreateLink(context.Background(), "https://example.com", nil)
	assert.ErrorIs(t, err, storageErr)
	assert.NotErrorIs(t, err, model.ErrExhaustedRetries)
}

func TestResolve_NotFound(t *testing.T) {
	svc, _ := newMemoryService(t)

	res, err := svc.Resolve(context.Background(), "nothere")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNotFound, res.Outcome)
	assert.Nil(t, res.Record)

	res, err = svc.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNotFound, res.Outcome)
}

func TestResolve_ExpiredDoesNotCount(t *testing.T) {
	svc, clock := newMemoryService(t)
	ctx := context.Background()

	resp, err := svc.Shorten(ctx, model.ShortenRequest{OriginalURL: "https://go.dev", TTLHours: hours(1)})
	require.NoError(t, err)

	// ровно в момент истечения ссылка ещё действует
	clock.Advance(time.Hour)
	res, err := svc.Resolve(ctx, resp.Code)
	require.NoError(t, err)
	require.Equal(t, model.OutcomeResolved, res.Outcome)
	assert.Equal(t, int64(1), res.Record.VisitCount)

	clock.Advance(time.Nanosecond)
	for i := 0; i < 3; i++ {
		res, err = svc.Resolve(ctx, resp.Code)
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeExpired, res.Outcome)
		assert.Nil(t, res.Record)
	}

	list, err := svc.List(ctx, resp.Code)
	require.NoError(t, err)
	require.Len(t, list, 1, "истёкшая запись остаётся до чистки")
	assert.Equal(t, int64(1), list[0].VisitCount)
}

func TestResolve_ExpiredNeverIncrements(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	past := start.Add(-time.Minute)

	repo.EXPECT().FindByCode(gomock.Any(), "old222").Return(&model.LinkRecord{
		Code: "old222", TargetURL: "https://x.y", CreatedAt: start.Add(-time.Hour), ExpiresAt: &past,
	}, nil)
	repo.EXPECT().IncrementVisit(gomock.Any(), gomock.Any()).Times(0)
	repo.EXPECT().DeleteExpired(gomock.Any(), gomock.Any()).Times(0)

	svc := service.NewShortenerService(repo, nil, nil, "http://s", service.WithClock(func() time.Time { return start }))
	res, err := svc.Resolve(context.Background(), "old222")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeExpired, res.Outcome)
}

func TestResolve_DeletedBeforeIncrement(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)

	repo.EXPECT().FindByCode(gomock.Any(), "gone22").Return(&model.LinkRecord{Code: "gone22", TargetURL: "https://x.y"}, nil)
	repo.EXPECT().IncrementVisit(gomock.Any(), "gone22").Return(nil, model.ErrNotFound)

	svc := service.NewShortenerService(repo, nil, nil, "http://s")
	res, err := svc.Resolve(context.Background(), "gone22")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNotFound, res.Outcome)
}

func TestResolve_StorageError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	storageErr := errors.New("timeout")

	repo.EXPECT().FindByCode(gomock.Any(), "abc222").Return(nil, storageErr)

	svc := service.NewShortenerService(repo, nil, nil, "http://s")
	_, err := svc.Resolve(context.Background(), "abc222")
	assert.ErrorIs(t, err, storageErr)
}

func TestResolve_ConcurrentVisits(t *testing.T) {
	svc, _ := newMemoryService(t)
	ctx := context.Background()

	resp, err := svc.Shorten(ctx, model.ShortenRequest{OriginalURL: "https://go.dev"})
	require.NoError(t, err)

	const n = 250
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Resolve(ctx, resp.Code)
			assert.NoError(t, err)
			assert.Equal(t, model.OutcomeResolved, res.Outcome)
		}()
	}
	wg.Wait()

	list, err := svc.List(ctx, resp.Code)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(n), list[0].VisitCount)
}

func TestShorten_CodesUnique(t *testing.T) {
	svc, _ := newMemoryService(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		resp, err := svc.Shorten(ctx, model.ShortenRequest{OriginalURL: "https://go.dev"})
		require.NoError(t, err)
		assert.False(t, seen[resp.Code], "duplicate code %s", resp.Code)
		seen[resp.Code] = true
	}
}

func TestList_SearchCaseInsensitiveNewestFirst(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)

	all := []*model.LinkRecord{
		{Code: "zzABCz", TargetURL: "https://one.example", CreatedAt: start.Add(3 * time.Hour)},
		{Code: "qwerty", TargetURL: "https://example.com/abc", CreatedAt: start.Add(2 * time.Hour)},
		{Code: "mnbvcx", TargetURL: "https://other.example", CreatedAt: start.Add(time.Hour)},
		{Code: "ppppp2", TargetURL: "https://EXAMPLE.com/xAbC", CreatedAt: start},
	}
	repo.EXPECT().ListAll(gomock.Any()).Return(all, nil).Times(3)

	svc := service.NewShortenerService(repo, nil, nil, "http://s")

	got, err := svc.List(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "zzABCz", got[0].Code)
	assert.Equal(t, "qwerty", got[1].Code)
	assert.Equal(t, "ppppp2", got[2].Code)

	got, err = svc.List(context.Background(), "  ")
	require.NoError(t, err)
	assert.Len(t, got, 4)

	got, err = svc.List(context.Background(), "nomatch")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReap_DeletesOnlyExpired(t *testing.T) {
	svc, clock := newMemoryService(t)
	ctx := context.Background()

	short, err := svc.Shorten(ctx, model.ShortenRequest{OriginalURL: "https://short.example", TTLHours: hours(1)})
	require.NoError(t, err)
	long, err := svc.Shorten(ctx, model.ShortenRequest{OriginalURL: "https://long.example", TTLHours: hours(48)})
	require.NoError(t, err)
	forever, err := svc.Shorten(ctx, model.ShortenRequest{OriginalURL: "https://forever.example"})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	deleted, err := svc.Reap(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	res, err := svc.Resolve(ctx, short.Code)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNotFound, res.Outcome)

	for _, code := range []string{long.Code, forever.Code} {
		res, err := svc.Resolve(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeResolved, res.Outcome)
	}
}

func TestReap_StorageError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	repo.EXPECT().DeleteExpired(gomock.Any(), start).Return(int64(0), errors.New("down"))

	svc := service.NewShortenerService(repo, nil, nil, "http://s")
	_, err := svc.Reap(context.Background(), start)
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	fetcher := mocks.NewMockPreviewFetcher(ctrl)
	svc := service.NewShortenerService(repo, nil, nil, "http://s", service.WithPreviewFetcher(fetcher))
	ctx := context.Background()

	t.Run("missing url", func(t *testing.T) {
		_, err := svc.Preview(ctx, model.PreviewRequest{URL: " "})
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("fetch failure degrades", func(t *testing.T) {
		fetcher.EXPECT().Fetch(gomock.Any(), "https://down.example").Return(model.Preview{}, errors.New("dial tcp"))
		p, err := svc.Preview(ctx, model.PreviewRequest{URL: "https://down.example"})
		require.NoError(t, err)
		assert.Equal(t, model.EmptyPreview(), p)
	})

	t.Run("partial preview", func(t *testing.T) {
		fetcher.EXPECT().Fetch(gomock.Any(), "https://up.example").Return(model.Preview{Title: "Up", Image: "https://up.example/i.png"}, nil)
		p, err := svc.Preview(ctx, model.PreviewRequest{URL: "https://up.example"})
		require.NoError(t, err)
		assert.Equal(t, "Up", p.Title)
		assert.Equal(t, model.NoDescription, p.Description)
		assert.Equal(t, "https://up.example/i.png", p.Image)
	})
}

func TestPing(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	repo.EXPECT().Ping(gomock.Any()).Return(nil)

	svc := service.NewShortenerService(repo, nil, nil, "http://s")
	assert.NoError(t, svc.Ping(context.Background()))
}
