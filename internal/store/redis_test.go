package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kicksmarket/bid-engine/internal/model"
)

// With Redis unreachable the directory degrades to the primary.
func TestCachedDirectory_FallsBackToPrimary(t *testing.T) {
	ms := NewMemoryStore()
	ms.AddUser(&model.User{ID: "u1"})
	ms.AddAddress(&model.Address{ID: "a1", UserID: "u1"})
	ms.AddProduct(&model.Product{ID: "p1", Name: "Jordan 1", MinSize: d(7), MaxSize: d(11)})

	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	dir := NewCachedDirectory(ms, rdb, time.Minute)
	ctx := context.Background()

	p, err := dir.FindProduct(ctx, "p1")
	if err != nil {
		t.Fatalf("expected fallback to primary, got %v", err)
	}
	if p.Name != "Jordan 1" || !p.MaxSize.Equal(d(11)) {
		t.Errorf("unexpected product %+v", p)
	}

	if _, err := dir.FindProduct(ctx, "missing"); !errors.Is(err, model.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
	if _, err := dir.FindAddress(ctx, "u1", "a1"); err != nil {
		t.Errorf("address passthrough failed: %v", err)
	}
	if _, err := dir.FindUser(ctx, "u1"); err != nil {
		t.Errorf("user passthrough failed: %v", err)
	}
	if err := dir.InvalidateProduct(ctx, "p1"); err == nil {
		t.Error("invalidate should report the unreachable cache")
	}
}

func TestProductKey(t *testing.T) {
	if got := productKey("p1"); got != "product:p1" {
		t.Errorf("unexpected key %q", got)
	}
}
