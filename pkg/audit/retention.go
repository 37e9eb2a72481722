package audit

import (
	"context"
	"log/slog"
	"time"
)

// RetentionWorker prunes audit events older than the configured retention.
// It runs under leader election so only one replica deletes.
type RetentionWorker struct {
	store  *Store
	cfg    AuditConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewRetentionWorker creates a RetentionWorker for cfg.
func NewRetentionWorker(store *Store, cfg *AuditConfig, logger *slog.Logger) *RetentionWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultAuditConfig()
	}
	c := *cfg
	if c.RetentionInterval <= 0 {
		c.RetentionInterval = 24 * time.Hour
	}
	return &RetentionWorker{store: store, cfg: c, logger: logger, now: time.Now}
}

// Run prunes once immediately, then every RetentionInterval until ctx is
// cancelled. It returns at once when retention is off.
func (w *RetentionWorker) Run(ctx context.Context) {
	if w.store == nil || w.cfg.RetentionDays <= 0 {
		w.logger.Info("audit retention disabled", "retention_days", w.cfg.RetentionDays)
		return
	}

	w.logger.Info("audit retention started",
		"retention_days", w.cfg.RetentionDays,
		"interval", w.cfg.RetentionInterval.String())

	ticker := time.NewTicker(w.cfg.RetentionInterval)
	defer ticker.Stop()

	w.prune(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("audit retention stopped")
			return
		case <-ticker.C:
			w.prune(ctx)
		}
	}
}

// prune deletes one batch of expired events and reports how many went.
func (w *RetentionWorker) prune(ctx context.Context) int64 {
	cutoff := w.now().Add(-w.cfg.retention())
	n, err := w.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		w.logger.Error("audit retention failed", "error", err)
		return 0
	}
	if n > 0 {
		w.logger.Info("pruned audit events", "deleted", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n
}
