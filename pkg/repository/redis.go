package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/service"
	"github.com/go-redis/redis/v8"
)

const (
	// Claims start provisional: if the process dies mid-delivery without
	// releasing, the claim lapses and the gateway's retry gets through.
	webhookClaimTTL = 10 * time.Minute
	// Confirmed claims outlive any plausible gateway redelivery window.
	webhookEventTTL = 72 * time.Hour
)

type RedisRepository struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	return &RedisRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}),
		config: cfg,
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func (r *RedisRepository) setJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisRepository) getJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// GetCart reads the user's cart snapshot. Carts are written by the cart
// service; this side is read-only.
func (r *RedisRepository) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	var cart models.Cart
	err := r.getJSON(ctx, fmt.Sprintf("cart:%s", userID), &cart)
	if errors.Is(err, redis.Nil) {
		return nil, service.ErrCartNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// Session is the authenticated principal written by the auth service.
type Session struct {
	UserID string `json:"user_id"`
}

func (r *RedisRepository) GetSession(ctx context.Context, token string) (*Session, error) {
	var sess Session
	err := r.getJSON(ctx, fmt.Sprintf("session:%s", token), &sess)
	if errors.Is(err, redis.Nil) {
		return nil, service.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ClaimWebhookEvent marks a gateway event id as in flight. Returns false
// when a delivery for the same event id was already claimed, letting the
// webhook handler short-circuit redeliveries before touching the database.
// The claim stays provisional until ConfirmWebhookEvent.
func (r *RedisRepository) ClaimWebhookEvent(ctx context.Context, eventID string) (bool, error) {
	return r.client.SetNX(ctx, "webhook:event:"+eventID, "1", webhookClaimTTL).Result()
}

// ConfirmWebhookEvent extends a claim once the delivery has committed, so
// late redeliveries keep short-circuiting for the full dedupe window.
func (r *RedisRepository) ConfirmWebhookEvent(ctx context.Context, eventID string) error {
	return r.client.Expire(ctx, "webhook:event:"+eventID, webhookEventTTL).Err()
}

// ReleaseWebhookEvent drops a claim so the gateway's retry of a failed
// delivery is not mistaken for a duplicate.
func (r *RedisRepository) ReleaseWebhookEvent(ctx context.Context, eventID string) error {
	return r.client.Del(ctx, "webhook:event:"+eventID).Err()
}

var (
	_ service.CartReader   = (*RedisRepository)(nil)
	_ service.EventClaimer = (*RedisRepository)(nil)
)
