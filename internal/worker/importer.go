package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/boost-marketplace/internal/config"
	"github.com/boost-marketplace/internal/domain"
	"github.com/boost-marketplace/internal/metrics"
)

// LocalSource exposes the records held in the local key-value store
type LocalSource interface {
	AllOrders(ctx context.Context) ([]domain.BoostOrder, error)
	AllTickets(ctx context.Context) ([]domain.SupportTicket, error)
}

// ImportTarget accepts records that are not yet in the relational store
type ImportTarget interface {
	ImportOrders(ctx context.Context, orders []domain.BoostOrder) (int, error)
	ImportTickets(ctx context.Context, tickets []domain.SupportTicket) (int, error)
}

// ImportScope selects which record kinds are copied
type ImportScope struct {
	Orders  bool
	Tickets bool
}

// ImportResult summarises one import cycle
type ImportResult struct {
	OrdersSeen      int
	OrdersImported  int
	TicketsSeen     int
	TicketsImported int
}

// ImportWorker periodically copies records written to the local store into
// Postgres. Existing rows are never overwritten.
type ImportWorker struct {
	source  LocalSource
	target  ImportTarget
	scope   ImportScope
	config  *config.SyncConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewImportWorker creates a new import worker
func NewImportWorker(
	source LocalSource,
	target ImportTarget,
	scope ImportScope,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *ImportWorker {
	return &ImportWorker{
		source: source,
		target: target,
		scope:  scope,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start runs one import immediately and then on every interval
func (w *ImportWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("import worker started",
		"interval", w.config.Interval,
		"orders", w.scope.Orders,
		"tickets", w.scope.Tickets,
	)

	go w.run(ctx)
	return nil
}

// Stop stops the background import process
func (w *ImportWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("import worker stopped")
	return nil
}

// run is the main worker loop
func (w *ImportWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	w.cycle(ctx)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

func (w *ImportWorker) cycle(ctx context.Context) {
	startTime := time.Now()
	result, err := w.RunOnce(ctx)
	if err != nil {
		w.logger.Error("import cycle failed", "error", err)
		return
	}
	w.logger.Info("import cycle completed",
		"duration", time.Since(startTime),
		"orders_seen", result.OrdersSeen,
		"orders_imported", result.OrdersImported,
		"tickets_seen", result.TicketsSeen,
		"tickets_imported", result.TicketsImported,
	)
}

// RunOnce runs a single import cycle
func (w *ImportWorker) RunOnce(ctx context.Context) (ImportResult, error) {
	var result ImportResult

	if w.scope.Orders {
		orders, err := w.source.AllOrders(ctx)
		if err != nil {
			return result, fmt.Errorf("reading local orders: %w", err)
		}
		result.OrdersSeen = len(orders)
		n, err := importBatches(ctx, orders, w.batchSize(), w.target.ImportOrders)
		result.OrdersImported = n
		metrics.RecordImported("orders", n)
		if err != nil {
			return result, err
		}
	}

	if w.scope.Tickets {
		tickets, err := w.source.AllTickets(ctx)
		if err != nil {
			return result, fmt.Errorf("reading local tickets: %w", err)
		}
		result.TicketsSeen = len(tickets)
		n, err := importBatches(ctx, tickets, w.batchSize(), w.target.ImportTickets)
		result.TicketsImported = n
		metrics.RecordImported("tickets", n)
		if err != nil {
			return result, err
		}
	}

	return result, nil
}

func (w *ImportWorker) batchSize() int {
	if w.config.BatchSize <= 0 {
		return 500
	}
	return w.config.BatchSize
}

// importBatches feeds records to fn in slices of at most size.
func importBatches[T any](ctx context.Context, records []T, size int, fn func(context.Context, []T) (int, error)) (int, error) {
	imported := 0
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		n, err := fn(ctx, records[start:end])
		imported += n
		if err != nil {
			return imported, fmt.Errorf("importing records %d-%d: %w", start, end, err)
		}
	}
	return imported, nil
}

// IsRunning returns whether the worker is currently running
func (w *ImportWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
