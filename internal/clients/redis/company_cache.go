package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/valuematch/valuematch-backend/internal/logger"
)

// CompanyCache is a best-effort name-to-id lookup cache in front of the
// Postgres dedup query. It is fill-after-write only; Postgres stays the
// source of truth and the cross-run create race is unaffected.
type CompanyCache interface {
	GetID(ctx context.Context, name string) (uuid.UUID, bool)
	SetID(ctx context.Context, name string, id uuid.UUID)
	Close() error
}

type companyCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewCompanyCache(log *logger.Logger) (CompanyCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	ttl := 24 * time.Hour
	if v := strings.TrimSpace(os.Getenv("REDIS_COMPANY_TTL_HOURS")); v != "" {
		var hours int
		if _, err := fmt.Sscanf(v, "%d", &hours); err == nil && hours > 0 {
			ttl = time.Duration(hours) * time.Hour
		}
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &companyCache{
		log: log.With("service", "RedisCompanyCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func cacheKey(name string) string {
	return "company:name:" + strings.ToLower(strings.TrimSpace(name))
}

func (c *companyCache) GetID(ctx context.Context, name string) (uuid.UUID, bool) {
	val, err := c.rdb.Get(ctx, cacheKey(name)).Result()
	if err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (c *companyCache) SetID(ctx context.Context, name string, id uuid.UUID) {
	if err := c.rdb.Set(ctx, cacheKey(name), id.String(), c.ttl).Err(); err != nil {
		c.log.Warn("Company cache set failed (ignored)", "name", name, "error", err)
	}
}

func (c *companyCache) Close() error {
	return c.rdb.Close()
}
