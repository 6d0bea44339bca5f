package repositories_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Totarae/shortlink/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linkStore общий контракт хранилищ, проверяемый для каждого бэкенда.
type linkStore interface {
	Insert(ctx context.Context, rec *model.LinkRecord) error
	FindByCode(ctx context.Context, code string) (*model.LinkRecord, error)
	IncrementVisit(ctx context.Context, code string) (*model.LinkRecord, error)
	ListAll(ctx context.Context) ([]*model.LinkRecord, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Ping(ctx context.Context) error
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newRecord(code string, created time.Time, expires *time.Time) *model.LinkRecord {
	return &model.LinkRecord{
		ID:        uuid.New(),
		Code:      code,
		TargetURL: "https://example.com/" + code,
		CreatedAt: created,
		ExpiresAt: expires,
	}
}

func at(t time.Time) *time.Time { return &t }

func runLinkStoreContract(t *testing.T, store linkStore) {
	ctx := context.Background()

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})

	t.Run("insert and find", func(t *testing.T) {
		rec := newRecord("find22", base, at(base.Add(time.Hour)))
		require.NoError(t, store.Insert(ctx, rec))

		got, err := store.FindByCode(ctx, "find22")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, rec.TargetURL, got.TargetURL)
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
		require.NotNil(t, got.ExpiresAt)
		assert.True(t, rec.ExpiresAt.Equal(*got.ExpiresAt))
		assert.Zero(t, got.VisitCount)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := store.FindByCode(ctx, "absent")
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = store.IncrementVisit(ctx, "absent")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("collision", func(t *testing.T) {
		require.NoError(t, store.Insert(ctx, newRecord("coll22", base, nil)))
		err := store.Insert(ctx, newRecord("coll22", base.Add(time.Minute), nil))
		assert.ErrorIs(t, err, model.ErrCollision)
	})

	t.Run("concurrent increments", func(t *testing.T) {
		require.NoError(t, store.Insert(ctx, newRecord("cnt222", base, nil)))

		const n = 50
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.IncrementVisit(ctx, "cnt222")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := store.IncrementVisit(ctx, "cnt222")
		require.NoError(t, err)
		assert.Equal(t, int64(n+1), got.VisitCount)
	})

	t.Run("list newest first", func(t *testing.T) {
		require.NoError(t, store.Insert(ctx, newRecord("lst222", base.Add(72*time.Hour), nil)))
		list, err := store.ListAll(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, list)
		assert.Equal(t, "lst222", list[0].Code)
		for i := 1; i < len(list); i++ {
			assert.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt))
		}
	})

	t.Run("delete expired", func(t *testing.T) {
		now := base.Add(100 * time.Hour)
		require.NoError(t, store.Insert(ctx, newRecord("exp222", base, at(now.Add(-time.Millisecond)))))
		require.NoError(t, store.Insert(ctx, newRecord("edg222", base, at(now))))
		require.NoError(t, store.Insert(ctx, newRecord("liv222", base, at(now.Add(time.Hour)))))

		// find22 истекла в base+1h и тоже удаляется
		deleted, err := store.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		_, err = store.FindByCode(ctx, "exp222")
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = store.FindByCode(ctx, "find22")
		assert.ErrorIs(t, err, model.ErrNotFound)
		for _, code := range []string{"edg222", "liv222", "coll22", "cnt222"} {
			_, err := store.FindByCode(ctx, code)
			assert.NoError(t, err, code)
		}

		list, err := store.ListAll(ctx)
		require.NoError(t, err)
		for _, rec := range list {
			assert.NotEqual(t, "exp222", rec.Code)
		}
	})
}
