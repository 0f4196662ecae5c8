package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kicksmarket/bid-engine/internal/model"
)

// CachedDirectory wraps a primary Directory with a Redis read-through cache
// for catalog products. Users and addresses pass through: ownership checks
// must see the collaborator's current data.
type CachedDirectory struct {
	primary Directory
	rdb     redis.UniversalClient
	ttl     time.Duration
}

// NewCachedDirectory creates a cached wrapper around a primary directory.
func NewCachedDirectory(primary Directory, rdb redis.UniversalClient, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through (check cache first) ---

func (d *CachedDirectory) FindProduct(ctx context.Context, productID string) (*model.Product, error) {
	data, err := d.rdb.Get(ctx, productKey(productID)).Bytes()
	if err == nil {
		var p model.Product
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	} else if err != redis.Nil {
		slog.Warn("product cache read failed", "product_id", productID, "err", err)
	}

	// Cache miss: read from primary.
	p, err := d.primary.FindProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		d.rdb.Set(ctx, productKey(productID), data, d.ttl)
	}
	return p, nil
}

// InvalidateProduct drops a cached product after a catalog change.
func (d *CachedDirectory) InvalidateProduct(ctx context.Context, productID string) error {
	return d.rdb.Del(ctx, productKey(productID)).Err()
}

// --- Passthrough (not cached) ---

func (d *CachedDirectory) FindUser(ctx context.Context, userID string) (*model.User, error) {
	return d.primary.FindUser(ctx, userID)
}

func (d *CachedDirectory) FindAddress(ctx context.Context, userID, addressID string) (*model.Address, error) {
	return d.primary.FindAddress(ctx, userID, addressID)
}

func productKey(id string) string { return fmt.Sprintf("product:%s", id) }
