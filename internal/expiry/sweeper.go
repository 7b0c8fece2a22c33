package expiry

import (
	"context"
	"log/slog"
	"time"

	"github.com/traffic-tacos/reservation-core/internal/common/types"
	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
)

// Sweeper is the backstop realization of the hold-expiry contract: a
// periodic scan for HOLD reservations whose hold_expires_at has already
// passed. It exists independently of the in-process timer registry because
// a process restart, a missed AfterFunc, or a crash between schedule and
// fire all leave a hold stuck past its deadline with nothing to expire it.
type Sweeper struct {
	reservations domain.ReservationRepository
	idempotency  domain.IdempotencyStore
	expirer      Expirer
	batchSize    int
}

func NewSweeper(reservations domain.ReservationRepository, idempotency domain.IdempotencyStore, expirer Expirer, batchSize int) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{
		reservations: reservations,
		idempotency:  idempotency,
		expirer:      expirer,
		batchSize:    batchSize,
	}
}

// Run sweeps once: it fetches expired holds and expires each one in turn,
// tolerating per-row failures so one stuck reservation never blocks the
// rest of the batch. It also prunes expired idempotency keys, piggybacking
// on the same cadence rather than running a third background loop.
func (s *Sweeper) Run(ctx context.Context) error {
	now := time.Now()

	holds, err := s.reservations.FindExpiredHolds(ctx, now, s.batchSize)
	if err != nil {
		return err
	}

	for _, r := range holds {
		if err := s.expirer.ExpireReservation(ctx, r.ID(), types.NewTraceID()); err != nil {
			slog.Warn("sweep expire failed, will retry next sweep", "reservation_id", r.ID().String(), "error", err)
			continue
		}
	}

	if s.idempotency != nil {
		if pruner, ok := s.idempotency.(interface {
			PruneExpired(ctx context.Context, now time.Time) (int64, error)
		}); ok {
			if n, err := pruner.PruneExpired(ctx, now); err != nil {
				slog.Warn("idempotency key pruning failed", "error", err)
			} else if n > 0 {
				slog.Info("pruned expired idempotency keys", "count", n)
			}
		}
	}

	return nil
}

// RunForever invokes Run on a fixed interval until ctx is cancelled.
// Interval should be no more than a quarter of the hold duration so a
// missed timer is caught well before a caller would notice the hold
// still appears active.
func (s *Sweeper) RunForever(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				slog.Error("sweep failed", "error", err)
			}
		}
	}
}
