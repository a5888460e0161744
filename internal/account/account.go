// Package account exposes identity reads for settlement validation.
//
// Clients buy, businesses sell, workers operate store points of sale.
// The settlement core only needs existence checks, store-access checks,
// and the per-business products-sold counter that revenue distribution
// maintains.
package account

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClientNotFound    = errors.New("client not found")
	ErrBusinessNotFound  = errors.New("business not found")
	ErrWorkerNotFound    = errors.New("worker not found")
	ErrStoreAccessDenied = errors.New("worker has no access to this store")
)

// Client is a buyer account.
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Business is a selling account.
type Business struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	TotalProductsSold int64     `json:"totalProductsSold"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Worker operates a store on behalf of a business.
type Worker struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"businessId"`
	StoreID    string    `json:"storeId"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store persists accounts.
type Store interface {
	GetClient(ctx context.Context, id string) (*Client, error)
	GetBusiness(ctx context.Context, id string) (*Business, error)
	GetWorker(ctx context.Context, id string) (*Worker, error)
	PutClient(ctx context.Context, c *Client) error
	PutBusiness(ctx context.Context, b *Business) error
	PutWorker(ctx context.Context, w *Worker) error
	IncrementProductsSold(ctx context.Context, businessID string, n int64) error
}

// Service wraps a Store with the checks settlement needs.
type Service struct {
	store Store
}

// NewService creates a new account service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// GetClient returns a client by ID.
func (s *Service) GetClient(ctx context.Context, id string) (*Client, error) {
	return s.store.GetClient(ctx, id)
}

// GetBusiness returns a business by ID.
func (s *Service) GetBusiness(ctx context.Context, id string) (*Business, error) {
	return s.store.GetBusiness(ctx, id)
}

// GetWorker returns a worker by ID.
func (s *Service) GetWorker(ctx context.Context, id string) (*Worker, error) {
	return s.store.GetWorker(ctx, id)
}

// ClientExists reports whether a client exists.
func (s *Service) ClientExists(ctx context.Context, id string) error {
	_, err := s.store.GetClient(ctx, id)
	return err
}

// WorkerHasStoreAccess verifies the worker exists and is assigned to
// the given store.
func (s *Service) WorkerHasStoreAccess(ctx context.Context, workerID, storeID string) error {
	w, err := s.store.GetWorker(ctx, workerID)
	if err != nil {
		return err
	}
	if w.StoreID != storeID {
		return ErrStoreAccessDenied
	}
	return nil
}

// IncrementProductsSold bumps a business's lifetime sold counter.
func (s *Service) IncrementProductsSold(ctx context.Context, businessID string, n int64) error {
	if n <= 0 {
		return nil
	}
	return s.store.IncrementProductsSold(ctx, businessID, n)
}

// PutClient creates or replaces a client.
func (s *Service) PutClient(ctx context.Context, c *Client) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	return s.store.PutClient(ctx, c)
}

// PutBusiness creates or replaces a business.
func (s *Service) PutBusiness(ctx context.Context, b *Business) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	return s.store.PutBusiness(ctx, b)
}

// PutWorker creates or replaces a worker.
func (s *Service) PutWorker(ctx context.Context, w *Worker) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	return s.store.PutWorker(ctx, w)
}
