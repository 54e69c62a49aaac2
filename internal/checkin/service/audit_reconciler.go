package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/checkin/internal/checkin/metrics"
	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
	"github.com/BrandonDHaskell/checkin/internal/ids"
)

// AuditReconciler periodically looks for completed allocations that have
// no completion log entry, which happens when an append failed after the
// transition committed. It reports the gap and, when Backfill is set,
// writes the missing entries from the allocation row.
//
// Completions younger than the grace period are skipped, so an append still
// in flight is never reported or backfilled. Backfill writes only when the
// triple still has no entry.
//
// An interval of 0 disables the reconciler.
type AuditReconciler struct {
	gaps     store.GapFinder
	sink     store.LogBackfiller
	interval time.Duration
	grace    time.Duration
	backfill bool
	batch    int
	logger   logrus.FieldLogger
	metrics  *metrics.Metrics
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// ReconcilerConfig holds the parameters for NewAuditReconciler.
type ReconcilerConfig struct {
	// IntervalMinutes is how often the reconciler runs. 0 disables it.
	IntervalMinutes int

	// Backfill writes entries for the gaps found instead of only
	// reporting them.
	Backfill bool

	// BatchSize caps the rows examined per run. Defaults to 500.
	BatchSize int

	// Grace is how old a completion must be before a missing entry counts
	// as a gap. Keep it above the audit append timeout.
	Grace time.Duration
}

// NewAuditReconciler creates a reconciler but does not start it.
func NewAuditReconciler(
	gaps store.GapFinder,
	sink store.LogBackfiller,
	cfg ReconcilerConfig,
	logger logrus.FieldLogger,
	m *metrics.Metrics,
) *AuditReconciler {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}
	grace := cfg.Grace
	if grace < 0 {
		grace = 0
	}
	return &AuditReconciler{
		gaps:     gaps,
		sink:     sink,
		interval: time.Duration(cfg.IntervalMinutes) * time.Minute,
		grace:    grace,
		backfill: cfg.Backfill,
		batch:    batch,
		logger:   logger,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
		done:     make(chan struct{}),
	}
}

// Start runs one pass immediately and then one per interval until ctx is
// cancelled or Stop is called.
func (r *AuditReconciler) Start(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("audit reconciler disabled (interval=0)")
		close(r.done)
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)

	go r.loop(ctx)

	r.logger.WithFields(logrus.Fields{
		"interval": r.interval.String(),
		"backfill": r.backfill,
	}).Info("audit reconciler started")
}

// Stop signals the reconciler to exit and waits for it to finish.
func (r *AuditReconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
}

func (r *AuditReconciler) loop(ctx context.Context) {
	defer close(r.done)

	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reconcile pass and returns the number of gaps
// found and the number of entries written.
func (r *AuditReconciler) RunOnce(ctx context.Context) (found, written int) {
	rows, err := r.gaps.FindUnlogged(ctx, r.now().Add(-r.grace), r.batch)
	if err != nil {
		r.logger.WithError(err).Error("audit reconcile: find unlogged")
		return 0, 0
	}
	found = len(rows)
	r.metrics.SetAuditGap(found)
	if found == 0 {
		return 0, 0
	}

	r.logger.WithField("missing", found).Warn("completed allocations without completion log entries")
	if !r.backfill {
		return found, 0
	}

	closed := 0 // logged by the live path since FindUnlogged
	for _, a := range rows {
		if a.Status != store.StatusCompleted || a.CompletedAt == nil {
			continue
		}
		e := store.CompletionLogEntry{
			EntryID:       ids.NewEntryID(*a.CompletedAt),
			EventID:       a.EventID,
			ItemID:        a.ItemID,
			ParticipantID: a.ParticipantID,
			StaffID:       a.StaffID,
			DeviceInfo:    a.DeviceInfo,
			LoggedAt:      *a.CompletedAt,
		}
		wrote, err := r.sink.AppendIfAbsent(ctx, e)
		if err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"event_id":       a.EventID,
				"item_id":        a.ItemID,
				"participant_id": a.ParticipantID,
			}).Error("audit reconcile: backfill append")
			continue
		}
		if wrote {
			written++
		} else {
			closed++
		}
	}
	r.metrics.AddAuditBackfilled(written)
	r.metrics.SetAuditGap(found - written - closed)
	return found, written
}
