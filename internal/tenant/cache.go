package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// cachedOrganization is the JSON shape stored per slug.
type cachedOrganization struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Cache is a Redis-backed resolver that fronts a slower store-backed
// resolver. Organization rows change rarely compared to how often every API
// request resolves its slug header.
type Cache struct {
	client *redis.Client
	next   Resolver
	ttl    time.Duration
	prefix string
}

// NewCache connects to Redis and wraps the given resolver.
func NewCache(redisURL string, next Resolver, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewCacheWithClient(client, next, ttl), nil
}

// NewCacheWithClient wraps an existing Redis client.
func NewCacheWithClient(client *redis.Client, next Resolver, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		client: client,
		next:   next,
		ttl:    ttl,
		prefix: "org:",
	}
}

func (c *Cache) key(slug string) string {
	return c.prefix + slug
}

// ResolveOrganization returns the cached organization for the slug, falling
// back to the wrapped resolver on a miss. Cache failures degrade to direct
// lookups rather than failing resolution.
func (c *Cache) ResolveOrganization(ctx context.Context, slug string) (Organization, error) {
	raw, err := c.client.Get(ctx, c.key(slug)).Result()
	if err == nil {
		var cached cachedOrganization
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return Organization(cached), nil
		}
		log.Printf("tenant: corrupt cache entry for slug %q, refetching", slug)
	} else if !errors.Is(err, redis.Nil) {
		log.Printf("tenant: cache read for slug %q: %v", slug, err)
	}

	org, err := c.next.ResolveOrganization(ctx, slug)
	if err != nil {
		return Organization{}, err
	}

	payload, err := json.Marshal(cachedOrganization(org))
	if err == nil {
		if err := c.client.Set(ctx, c.key(slug), payload, c.ttl).Err(); err != nil {
			log.Printf("tenant: cache write for slug %q: %v", slug, err)
		}
	}
	return org, nil
}

// Invalidate drops the cached entry for a slug so the next resolve hits
// the store. No API operation mutates organizations; this exists for
// out-of-band changes, such as deactivating a tenant directly in the
// database, that must take effect before the TTL runs out.
func (c *Cache) Invalidate(ctx context.Context, slug string) error {
	if err := c.client.Del(ctx, c.key(slug)).Err(); err != nil {
		return fmt.Errorf("invalidate slug %s: %w", slug, err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
