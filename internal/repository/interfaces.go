// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"bnc-service/internal/model"
	"bnc-service/pkg/plugin"
)

// ErrExchangeNotFound is returned for an id that is not, or no longer, journaled
var ErrExchangeNotFound = errors.New("exchange not found")

// ExchangeRepository defines console journal access operations
type ExchangeRepository interface {
	Create(ctx context.Context, exchange *model.Exchange) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exchange, error)

	// Listing and filtering
	List(ctx context.Context, filter *ExchangeFilter) ([]*model.Exchange, int, error)

	// Analytics
	GetExchangeStats(ctx context.Context) (*ExchangeStats, error)

	// Cleanup
	DeleteAll(ctx context.Context) (int, error)
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int, error)
}

// ExchangeFilter represents journal listing filters. Results are newest first.
type ExchangeFilter struct {
	Kind      *plugin.Kind          `json:"kind,omitempty"`
	Status    *model.ExchangeStatus `json:"status,omitempty"`
	Command   string                `json:"command,omitempty"` // prefix match
	StartDate *time.Time            `json:"start_date,omitempty"`
	EndDate   *time.Time            `json:"end_date,omitempty"`
	Page      int                   `json:"page"`
	PerPage   int                   `json:"per_page"`
}

// ExchangeStats represents journal statistics
type ExchangeStats struct {
	Total    int                          `json:"total"`
	Capacity int                          `json:"capacity"`
	Dropped  uint64                       `json:"dropped"`
	ByStatus map[model.ExchangeStatus]int `json:"by_status"`
	ByKind   map[plugin.Kind]int          `json:"by_kind"`
	Oldest   *time.Time                   `json:"oldest,omitempty"`
	Newest   *time.Time                   `json:"newest,omitempty"`
}
