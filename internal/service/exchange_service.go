// internal/service/exchange_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bnc-service/internal/model"
	"bnc-service/internal/repository"
	"bnc-service/internal/utils"
	"bnc-service/pkg/plugin"
)

// ExchangeRecorder receives every completed console exchange
type ExchangeRecorder interface {
	Record(kind plugin.Kind, command, reply string)
}

// ExchangeService keeps the console journal
type ExchangeService struct {
	exchangeRepo repository.ExchangeRepository
	retention    time.Duration
	logger       *utils.ServiceLogger
}

// NewExchangeService creates a new exchange service instance. A zero retention keeps
// exchanges until the ring overwrites them.
func NewExchangeService(exchangeRepo repository.ExchangeRepository, retention time.Duration, logger *zap.Logger) *ExchangeService {
	return &ExchangeService{
		exchangeRepo: exchangeRepo,
		retention:    retention,
		logger:       utils.NewServiceLogger(logger, "exchange-service"),
	}
}

// Record journals one exchange
func (es *ExchangeService) Record(kind plugin.Kind, command, reply string) {
	exchange := model.NewExchange(kind, command, reply)
	if err := es.exchangeRepo.Create(context.Background(), exchange); err != nil {
		es.logger.Warn("Failed to journal exchange", zap.String("command", command), zap.Error(err))
		return
	}
	if exchange.Status == model.ExchangeStatusRejected {
		es.logger.Warn("Rejected command journaled",
			zap.String("kind", string(kind)),
			zap.String("command", command),
			zap.String("reply", reply),
		)
	}
}

// GetExchange retrieves exchange details
func (es *ExchangeService) GetExchange(ctx context.Context, id uuid.UUID) (*model.Exchange, error) {
	exchange, err := es.exchangeRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("exchange %s: %w", id, err)
	}
	return exchange, nil
}

// ListExchanges lists exchanges with filtering, newest first
func (es *ExchangeService) ListExchanges(ctx context.Context, filter *repository.ExchangeFilter) ([]*model.Exchange, *PaginationResult, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = 50
	}

	exchanges, total, err := es.exchangeRepo.List(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list exchanges: %w", err)
	}

	pagination := &PaginationResult{
		Total:      total,
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		TotalPages: (total + filter.PerPage - 1) / filter.PerPage,
	}
	return exchanges, pagination, nil
}

// Stats summarizes the journal
func (es *ExchangeService) Stats(ctx context.Context) (*repository.ExchangeStats, error) {
	return es.exchangeRepo.GetExchangeStats(ctx)
}

// Clear empties the journal
func (es *ExchangeService) Clear(ctx context.Context) (int, error) {
	return es.exchangeRepo.DeleteAll(ctx)
}

// Prune drops exchanges older than the retention window
func (es *ExchangeService) Prune(ctx context.Context) (int, error) {
	if es.retention <= 0 {
		return 0, nil
	}
	deleted, err := es.exchangeRepo.DeleteOlderThan(ctx, time.Now().Add(-es.retention))
	if err != nil {
		return 0, fmt.Errorf("failed to prune exchanges: %w", err)
	}
	if deleted > 0 {
		es.logger.Debug("Exchanges pruned", zap.Int("deleted", deleted))
	}
	return deleted, nil
}

// PaginationResult represents pagination information
type PaginationResult struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}
