package main

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/kicksmarket/bid-engine/internal/model"
	"github.com/kicksmarket/bid-engine/internal/store"
)

// seedDemo loads a small catalog and two users into the in-memory store so a
// local instance is usable without a database.
func seedDemo(ms *store.MemoryStore) {
	ms.AddProduct(&model.Product{
		ID:          "aj1-chicago",
		Name:        "Air Jordan 1 Retro High OG Chicago",
		ModelNumber: "DZ5485-612",
		MinSize:     decimal.NewFromInt(5),
		MaxSize:     decimal.NewFromInt(14),
	})
	ms.AddProduct(&model.Product{
		ID:          "dunk-panda",
		Name:        "Nike Dunk Low Retro White Black",
		ModelNumber: "DD1391-100",
		MinSize:     decimal.NewFromInt(4),
		MaxSize:     decimal.NewFromInt(13),
	})

	for _, u := range []struct{ id, email, name string }{
		{"demo-seller", "seller@example.com", "Demo Seller"},
		{"demo-buyer", "buyer@example.com", "Demo Buyer"},
	} {
		ms.AddUser(&model.User{ID: u.id, Email: u.email})
		ms.AddAddress(&model.Address{
			ID:      "addr-" + u.id,
			UserID:  u.id,
			Name:    u.name,
			Phone:   "010-0000-0000",
			ZipCode: "06236",
			Line1:   "123 Teheran-ro",
		})
	}
	slog.Info("seeded demo catalog", "products", 2, "users", 2)
}
