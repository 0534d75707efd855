package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

const (
	cartKeyPrefix            = "cart:"
	defaultIdempotencyKeyTTL = 24 * time.Hour
)

// Carts live in a hash: "doc" holds the JSON body, "version" the lock counter.
var createCartScript = redis.NewScript(`
local key = KEYS[1]
local ttl = tonumber(ARGV[3])

if redis.call('EXISTS', key) == 1 then
	return 0
end

redis.call('HSET', key, 'doc', ARGV[1], 'version', ARGV[2])
if ttl > 0 then
	redis.call('PEXPIRE', key, ttl)
end
return 1
`)

var updateCartScript = redis.NewScript(`
local key = KEYS[1]
local expected = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = redis.call('HGET', key, 'version')
if not current then
	return -1
end

if tonumber(current) ~= expected then
	return 0
end

redis.call('HSET', key, 'doc', ARGV[1], 'version', ARGV[4])
if ttl > 0 then
	redis.call('PEXPIRE', key, ttl)
end
return 1
`)

type redisCartItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type redisCart struct {
	ID         string          `json:"id"`
	Items      []redisCartItem `json:"items"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// RedisAdapter stores carts and idempotency keys. Carts expire after cartTTL
// of inactivity when it is positive.
type RedisAdapter struct {
	client         *redis.Client
	cartTTL        time.Duration
	idempotencyTTL time.Duration
}

func NewRedisAdapter(client *redis.Client, cartTTL, idempotencyTTL time.Duration) *RedisAdapter {
	if idempotencyTTL <= 0 {
		idempotencyTTL = defaultIdempotencyKeyTTL
	}
	return &RedisAdapter{client: client, cartTTL: cartTTL, idempotencyTTL: idempotencyTTL}
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisAdapter) GetCart(ctx context.Context, id string) (*domain.Cart, error) {
	values, err := r.client.HMGet(ctx, cartKeyPrefix+id, "doc", "version").Result()
	if err != nil {
		return nil, fmt.Errorf("read cart %s: %w", id, err)
	}

	doc, ok := values[0].(string)
	if !ok {
		return nil, domain.NewNotFoundError("cart", id)
	}
	versionStr, _ := values[1].(string)
	version, err := strconv.Atoi(versionStr)
	if err != nil {
		return nil, fmt.Errorf("cart %s has a corrupt version %q", id, versionStr)
	}

	var stored redisCart
	if err := json.Unmarshal([]byte(doc), &stored); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", id, err)
	}

	cart := &domain.Cart{
		ID:         stored.ID,
		Items:      make([]domain.CartItem, 0, len(stored.Items)),
		TotalPrice: stored.TotalPrice,
		Version:    version,
		CreatedAt:  stored.CreatedAt,
		UpdatedAt:  stored.UpdatedAt,
	}
	for _, item := range stored.Items {
		cart.Items = append(cart.Items, domain.CartItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return cart, nil
}

func (r *RedisAdapter) CreateCart(ctx context.Context, cart *domain.Cart) error {
	doc, err := encodeCart(cart)
	if err != nil {
		return err
	}

	result, err := createCartScript.Run(ctx, r.client, []string{cartKeyPrefix + cart.ID},
		doc, cart.Version, r.cartTTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("create cart %s: %w", cart.ID, err)
	}
	if result == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *RedisAdapter) UpdateCart(ctx context.Context, cart *domain.Cart) error {
	doc, err := encodeCart(cart)
	if err != nil {
		return err
	}

	result, err := updateCartScript.Run(ctx, r.client, []string{cartKeyPrefix + cart.ID},
		doc, cart.Version, r.cartTTL.Milliseconds(), cart.Version+1).Int()
	if err != nil {
		return fmt.Errorf("update cart %s: %w", cart.ID, err)
	}

	switch result {
	case -1:
		return domain.NewNotFoundError("cart", cart.ID)
	case 0:
		return domain.ErrConflict
	}
	cart.Version++
	return nil
}

func (r *RedisAdapter) DeleteCart(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, cartKeyPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("delete cart %s: %w", id, err)
	}
	if n == 0 {
		return domain.NewNotFoundError("cart", id)
	}
	return nil
}

func encodeCart(cart *domain.Cart) (string, error) {
	stored := redisCart{
		ID:         cart.ID,
		Items:      make([]redisCartItem, 0, len(cart.Items)),
		TotalPrice: cart.TotalPrice,
		CreatedAt:  cart.CreatedAt,
		UpdatedAt:  cart.UpdatedAt,
	}
	for _, item := range cart.Items {
		stored.Items = append(stored.Items, redisCartItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("encode cart %s: %w", cart.ID, err)
	}
	return string(data), nil
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, r.idempotencyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	err := r.client.Del(ctx, key).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
