// internal/repository/exchange_repository.go
package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bnc-service/internal/model"
	"bnc-service/pkg/plugin"
)

const defaultJournalSize = 500

// memoryExchangeRepository implements ExchangeRepository as a bounded ring.
// The oldest exchange is overwritten once the ring is full.
type memoryExchangeRepository struct {
	mutex   sync.RWMutex
	ring    []*model.Exchange
	next    int
	count   int
	dropped uint64
	logger  *zap.Logger
}

// NewExchangeRepository creates a journal holding at most capacity exchanges
func NewExchangeRepository(capacity int, logger *zap.Logger) ExchangeRepository {
	if capacity <= 0 {
		capacity = defaultJournalSize
	}
	return &memoryExchangeRepository{
		ring:   make([]*model.Exchange, capacity),
		logger: logger,
	}
}

// Create appends an exchange
func (r *memoryExchangeRepository) Create(ctx context.Context, exchange *model.Exchange) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.count == len(r.ring) {
		r.dropped++
	} else {
		r.count++
	}
	r.ring[r.next] = exchange
	r.next = (r.next + 1) % len(r.ring)
	return nil
}

// GetByID retrieves one journaled exchange
func (r *memoryExchangeRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exchange, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, e := range r.newestFirst() {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ErrExchangeNotFound
}

// List returns one page of matching exchanges and the total match count
func (r *memoryExchangeRepository) List(ctx context.Context, filter *ExchangeFilter) ([]*model.Exchange, int, error) {
	if filter == nil {
		filter = &ExchangeFilter{}
	}
	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var matched []*model.Exchange
	for _, e := range r.newestFirst() {
		if filter.matches(e) {
			matched = append(matched, e)
		}
	}

	total := len(matched)
	start := (page - 1) * perPage
	if start >= total {
		return []*model.Exchange{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// GetExchangeStats summarizes the journal
func (r *memoryExchangeRepository) GetExchangeStats(ctx context.Context) (*ExchangeStats, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := &ExchangeStats{
		Total:    r.count,
		Capacity: len(r.ring),
		Dropped:  r.dropped,
		ByStatus: make(map[model.ExchangeStatus]int),
		ByKind:   make(map[plugin.Kind]int),
	}
	all := r.newestFirst()
	for _, e := range all {
		stats.ByStatus[e.Status]++
		stats.ByKind[e.Kind]++
	}
	if len(all) > 0 {
		newest := all[0].Timestamp
		oldest := all[len(all)-1].Timestamp
		stats.Newest = &newest
		stats.Oldest = &oldest
	}
	return stats, nil
}

// DeleteAll empties the journal
func (r *memoryExchangeRepository) DeleteAll(ctx context.Context) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	n := r.count
	clear(r.ring)
	r.next, r.count = 0, 0
	r.logger.Info("Exchange journal cleared", zap.Int("deleted", n))
	return n, nil
}

// DeleteOlderThan drops exchanges stamped before olderThan
func (r *memoryExchangeRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	all := r.newestFirst()
	keep := all[:0:0]
	for _, e := range all {
		if !e.Timestamp.Before(olderThan) {
			keep = append(keep, e)
		}
	}
	deleted := len(all) - len(keep)

	clear(r.ring)
	r.next, r.count = 0, 0
	for i := len(keep) - 1; i >= 0; i-- {
		r.ring[r.next] = keep[i]
		r.next = (r.next + 1) % len(r.ring)
		r.count++
	}
	return deleted, nil
}

// newestFirst copies the ring in reverse insertion order. Callers hold the lock.
func (r *memoryExchangeRepository) newestFirst() []*model.Exchange {
	out := make([]*model.Exchange, 0, r.count)
	for i := 1; i <= r.count; i++ {
		idx := (r.next - i + len(r.ring)) % len(r.ring)
		out = append(out, r.ring[idx])
	}
	return out
}

func (f *ExchangeFilter) matches(e *model.Exchange) bool {
	if f.Kind != nil && e.Kind != *f.Kind {
		return false
	}
	if f.Status != nil && e.Status != *f.Status {
		return false
	}
	if f.Command != "" && !strings.HasPrefix(e.Command, f.Command) {
		return false
	}
	if f.StartDate != nil && e.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.Timestamp.After(*f.EndDate) {
		return false
	}
	return true
}
