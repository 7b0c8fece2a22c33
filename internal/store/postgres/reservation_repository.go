package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/traffic-tacos/reservation-core/internal/common/types"
	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
)

// ReservationRepository implements domain.ReservationRepository using PostgreSQL.
type ReservationRepository struct {
	db Executor
}

func NewReservationRepository(db Executor) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// Save persists a reservation using UPSERT with optimistic locking: a single
// round-trip INSERT on first save, UPDATE with a version check thereafter.
func (r *ReservationRepository) Save(ctx context.Context, res *domain.Reservation) error {
	var holdExpiresAt *time.Time
	if !res.HoldExpiresAt().IsZero() {
		t := res.HoldExpiresAt()
		holdExpiresAt = &t
	}

	// seat_ids is NOT NULL; a nil slice would be sent as NULL.
	seatIDs := res.SeatIDs()
	if seatIDs == nil {
		seatIDs = []string{}
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO reservation.reservations (
			id, event_id, caller_id, quantity, seat_ids,
			status, hold_expires_at, hold_token, idempotency_key, version,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			seat_ids = EXCLUDED.seat_ids,
			status = EXCLUDED.status,
			hold_expires_at = EXCLUDED.hold_expires_at,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE reservation.reservations.version = EXCLUDED.version - 1`,
		res.ID().String(),
		res.EventID(),
		res.CallerID().String(),
		res.Quantity(),
		seatIDs,
		string(res.Status()),
		holdExpiresAt,
		res.HoldToken(),
		res.IdempotencyKey(),
		res.Version(),
		res.CreatedAt(),
		res.UpdatedAt(),
	)
	if err != nil {
		return err
	}

	if res.Version() > 1 && tag.RowsAffected() == 0 {
		return domain.ErrOptimisticLock
	}
	return nil
}

// FindByID retrieves a reservation by ID.
func (r *ReservationRepository) FindByID(ctx context.Context, id domain.ReservationID) (*domain.Reservation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, event_id, caller_id, quantity, seat_ids,
			   status, hold_expires_at, hold_token, idempotency_key, version,
			   created_at, updated_at
		FROM reservation.reservations
		WHERE id = $1`, id.String())

	res, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// FindExpiredHolds returns HOLD reservations whose hold has passed now,
// bounded to limit rows, used by the backstop sweeper.
func (r *ReservationRepository) FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, event_id, caller_id, quantity, seat_ids,
			   status, hold_expires_at, hold_token, idempotency_key, version,
			   created_at, updated_at
		FROM reservation.reservations
		WHERE status = $1 AND hold_expires_at <= $2
		ORDER BY hold_expires_at
		LIMIT $3`, string(domain.ReservationStatusHold), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanReservation(row scannable) (*domain.Reservation, error) {
	var (
		id             string
		eventID        string
		callerID       string
		quantity       int
		seatIDs        []string
		status         string
		holdExpiresAt  *time.Time
		holdToken      string
		idempotencyKey string
		version        int
		createdAt      time.Time
		updatedAt      time.Time
	)

	if err := row.Scan(&id, &eventID, &callerID, &quantity, &seatIDs,
		&status, &holdExpiresAt, &holdToken, &idempotencyKey, &version,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}

	reservationID, err := domain.ParseReservationID(id)
	if err != nil {
		return nil, domain.ErrCorruptData
	}

	var expiresAt time.Time
	if holdExpiresAt != nil {
		expiresAt = *holdExpiresAt
	}

	return domain.ReconstructReservation(
		reservationID,
		eventID,
		types.CallerID(callerID),
		quantity,
		seatIDs,
		domain.ReservationStatus(status),
		expiresAt,
		holdToken,
		idempotencyKey,
		version,
		createdAt,
		updatedAt,
	), nil
}
