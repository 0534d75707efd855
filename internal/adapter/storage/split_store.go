package storage

import (
	"context"
	"errors"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// SplitStore serves carts from a separate backend, typically Redis, and
// everything else from the record store.
type SplitStore struct {
	port.RecordStore
	carts port.CartRepository
}

type pinger interface {
	Ping(ctx context.Context) error
}

func NewSplitStore(records port.RecordStore, carts port.CartRepository) *SplitStore {
	return &SplitStore{RecordStore: records, carts: carts}
}

func (s *SplitStore) GetCart(ctx context.Context, id string) (*domain.Cart, error) {
	return s.carts.GetCart(ctx, id)
}

func (s *SplitStore) CreateCart(ctx context.Context, cart *domain.Cart) error {
	return s.carts.CreateCart(ctx, cart)
}

func (s *SplitStore) UpdateCart(ctx context.Context, cart *domain.Cart) error {
	return s.carts.UpdateCart(ctx, cart)
}

func (s *SplitStore) DeleteCart(ctx context.Context, id string) error {
	return s.carts.DeleteCart(ctx, id)
}

func (s *SplitStore) Ping(ctx context.Context) error {
	err := s.RecordStore.Ping(ctx)
	if p, ok := s.carts.(pinger); ok {
		err = errors.Join(err, p.Ping(ctx))
	}
	return err
}

// WithinTx forwards to the record store when it supports transactions.
func (s *SplitStore) WithinTx(ctx context.Context, fn func(tx port.InventoryTx) error) error {
	t, ok := s.RecordStore.(port.Transactor)
	if !ok {
		return errors.New("record store does not support transactions")
	}
	return t.WithinTx(ctx, fn)
}
