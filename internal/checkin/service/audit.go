package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/checkin/internal/checkin/metrics"
	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
	"github.com/BrandonDHaskell/checkin/internal/ids"
)

const defaultAuditTimeout = 2 * time.Second

// AuditLog writes completion log entries after an allocation has been
// completed. A failed write is logged and counted but never returned: the
// allocation row is already the source of truth and stays completed.
type AuditLog struct {
	sink    store.CompletionLogStore
	timeout time.Duration
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewAuditLog(sink store.CompletionLogStore, timeout time.Duration, logger logrus.FieldLogger, m *metrics.Metrics) *AuditLog {
	if timeout <= 0 {
		timeout = defaultAuditTimeout
	}
	return &AuditLog{
		sink:    sink,
		timeout: timeout,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Append records rec and reports whether the entry was stored.
//
// The write runs on a context detached from the caller's cancellation: by
// the time Append is called the transition has committed, and the entry
// must reflect it even if the caller has gone away.
func (a *AuditLog) Append(ctx context.Context, rec store.CompletionRecord) (store.CompletionLogEntry, bool) {
	at := a.now()
	e := store.CompletionLogEntry{
		EntryID:       ids.NewEntryID(at),
		EventID:       rec.EventID,
		ItemID:        rec.ItemID,
		ParticipantID: rec.ParticipantID,
		StaffID:       rec.StaffID,
		DeviceInfo:    rec.DeviceInfo,
		LoggedAt:      at,
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	if err := a.write(ctx, e); err != nil {
		log := a.logger.WithFields(logrus.Fields{
			"entry_id":       e.EntryID,
			"event_id":       e.EventID,
			"item_id":        e.ItemID,
			"participant_id": e.ParticipantID,
		}).WithError(err)
		// The reconciler backfilled this triple first.
		if errors.Is(err, store.ErrConstraint) {
			log.Warn("completion already logged")
			return e, false
		}
		a.metrics.IncAuditWriteFailure()
		log.Error("completion log append failed")
		return e, false
	}
	return e, true
}

// write is the only place a panic from the sink is recovered.
func (a *AuditLog) write(ctx context.Context, e store.CompletionLogEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("completion log sink panicked: %v", r)
		}
	}()
	return a.sink.Append(ctx, e)
}
