package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Totarae/shortlink/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix префикс ключей по умолчанию.
const DefaultRedisPrefix = "shortlink:"

// Ключи: <prefix>link:<code> (hash), <prefix>links:created и <prefix>links:expires (zset, score в микросекундах).
// Вставка, инкремент и чистка выполняются Lua-скриптами и потому атомарны на стороне Redis.
var (
	insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'code', ARGV[2], 'target_url', ARGV[3], 'created_at', ARGV[4], 'visit_count', 0)
redis.call('ZADD', KEYS[2], ARGV[5], ARGV[2])
if ARGV[6] ~= '' then
  redis.call('HSET', KEYS[1], 'expires_at', ARGV[6])
  redis.call('ZADD', KEYS[3], ARGV[7], ARGV[2])
end
return 1
`)

	incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
redis.call('HINCRBY', KEYS[1], 'visit_count', 1)
return redis.call('HGETALL', KEYS[1])
`)

	reapScript = redis.NewScript(`
local codes = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
for _, code in ipairs(codes) do
  redis.call('DEL', ARGV[2] .. code)
  redis.call('ZREM', KEYS[1], code)
  redis.call('ZREM', KEYS[2], code)
end
return #codes
`)
)

// RedisRepository хранилище ссылок в Redis.
//
// Требует одиночный узел Redis (или Sentinel): reapScript собирает ключи
// ссылок внутри Lua, минуя KEYS, что в Redis Cluster недопустимо.
// Поэтому клиент именно *redis.Client, а не UniversalClient.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository создаёт репозиторий; пустой prefix заменяется на DefaultRedisPrefix.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRepository{client: client, prefix: prefix}
}

// NewRedisClient разбирает URL, создаёт клиента и проверяет соединение.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (r *RedisRepository) linkKey(code string) string { return r.prefix + "link:" + code }
func (r *RedisRepository) createdKey() string         { return r.prefix + "links:created" }
func (r *RedisRepository) expiresKey() string         { return r.prefix + "links:expires" }

// Insert сохраняет запись; занятый код даёт model.ErrCollision.
func (r *RedisRepository) Insert(ctx context.Context, rec *model.LinkRecord) error {
	expires, expiresScore := "", int64(0)
	if rec.ExpiresAt != nil {
		expires = formatTime(*rec.ExpiresAt)
		expiresScore = rec.ExpiresAt.UnixMicro()
	}

	inserted, err := insertScript.Run(ctx, r.client,
		[]string{r.linkKey(rec.Code), r.createdKey(), r.expiresKey()},
		rec.ID.String(), rec.Code, rec.TargetURL, formatTime(rec.CreatedAt), rec.CreatedAt.UnixMicro(),
		expires, expiresScore,
	).Int64()
	if err != nil {
		return fmt.Errorf("redis insert error: %w", err)
	}
	if inserted == 0 {
		return model.ErrCollision
	}
	return nil
}

// FindByCode извлекает запись по короткому коду.
func (r *RedisRepository) FindByCode(ctx context.Context, code string) (*model.LinkRecord, error) {
	fields, err := r.client.HGetAll(ctx, r.linkKey(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if len(fields) == 0 {
		return nil, model.ErrNotFound
	}
	return decodeLink(fields)
}

// IncrementVisit атомарно увеличивает счётчик и возвращает запись после инкремента.
func (r *RedisRepository) IncrementVisit(ctx context.Context, code string) (*model.LinkRecord, error) {
	reply, err := incrementScript.Run(ctx, r.client, []string{r.linkKey(code)}).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to increment visits: %w", err)
	}
	fields := make(map[string]string, len(reply)/2)
	for i := 0; i+1 < len(reply); i += 2 {
		fields[reply[i]] = reply[i+1]
	}
	return decodeLink(fields)
}

// ListAll возвращает все ссылки, новые первыми.
func (r *RedisRepository) ListAll(ctx context.Context) ([]*model.LinkRecord, error) {
	codes, err := r.client.ZRevRange(ctx, r.createdKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	if len(codes) == 0 {
		return []*model.LinkRecord{}, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(codes))
	for i, code := range codes {
		cmds[i] = pipe.HGetAll(ctx, r.linkKey(code))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to load links: %w", err)
	}

	results := make([]*model.LinkRecord, 0, len(codes))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// удалена между ZREVRANGE и HGETALL
			continue
		}
		rec, err := decodeLink(fields)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	model.SortNewestFirst(results)
	return results, nil
}

// DeleteExpired удаляет ссылки с expires_at раньше now.
func (r *RedisRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	deleted, err := reapScript.Run(ctx, r.client,
		[]string{r.expiresKey(), r.createdKey()},
		reapThreshold(now), r.prefix+"link:",
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired links: %w", err)
	}
	return deleted, nil
}

// Ping проверяет доступность Redis.
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// reapThreshold исключающая верхняя граница score: expires_at < now
// для времён, усечённых до микросекунды.
func reapThreshold(now time.Time) int64 {
	us := now.UnixMicro()
	if now.Truncate(time.Microsecond).Before(now) {
		us++
	}
	return us
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeLink(fields map[string]string) (*model.LinkRecord, error) {
	id, err := uuid.Parse(fields["id"])
	if err != nil {
		return nil, fmt.Errorf("corrupt link %q: id: %w", fields["code"], err)
	}
	created, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt link %q: created_at: %w", fields["code"], err)
	}
	visits, err := strconv.ParseInt(fields["visit_count"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt link %q: visit_count: %w", fields["code"], err)
	}

	rec := &model.LinkRecord{
		ID:         id,
		Code:       fields["code"],
		TargetURL:  fields["target_url"],
		CreatedAt:  created.UTC(),
		VisitCount: visits,
	}
	if raw := fields["expires_at"]; raw != "" {
		expires, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt link %q: expires_at: %w", fields["code"], err)
		}
		expires = expires.UTC()
		rec.ExpiresAt = &expires
	}
	return rec, nil
}
