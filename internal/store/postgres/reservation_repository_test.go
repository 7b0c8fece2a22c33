package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/traffic-tacos/reservation-core/internal/common/types"
	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
	"github.com/traffic-tacos/reservation-core/internal/store/postgres"
)

type ReservationRepositorySuite struct {
	suite.Suite
	ctx  context.Context
	repo *postgres.ReservationRepository
}

func TestReservationRepositorySuite(t *testing.T) {
	suite.Run(t, new(ReservationRepositorySuite))
}

func (s *ReservationRepositorySuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(truncateTables(s.ctx, getTestPool()))
	s.repo = postgres.NewReservationRepository(getTestPool())
}

func (s *ReservationRepositorySuite) TestSaveAndFindByID() {
	r := domain.NewReservation("event-1", types.CallerID("caller-1"), 2, []string{"seat-a", "seat-b"}, "hold-token-1", "idem-1", time.Minute)

	s.Require().NoError(s.repo.Save(s.ctx, r))

	got, err := s.repo.FindByID(s.ctx, r.ID())
	s.Require().NoError(err)
	s.Equal(r.ID(), got.ID())
	s.Equal(domain.ReservationStatusHold, got.Status())
	s.Equal([]string{"seat-a", "seat-b"}, got.SeatIDs())
	s.Equal(1, got.Version())
}

func (s *ReservationRepositorySuite) TestFindByIDNotFound() {
	_, err := s.repo.FindByID(s.ctx, domain.NewReservationID())

	s.ErrorIs(err, domain.ErrReservationNotFound)
}

func (s *ReservationRepositorySuite) TestSaveDetectsOptimisticLockConflict() {
	r := domain.NewReservation("event-1", types.CallerID("caller-1"), 1, nil, "hold-token-1", "idem-2", time.Minute)
	s.Require().NoError(s.repo.Save(s.ctx, r))

	stale, err := s.repo.FindByID(s.ctx, r.ID())
	s.Require().NoError(err)

	s.Require().NoError(r.Confirm())
	s.Require().NoError(s.repo.Save(s.ctx, r))

	s.Require().NoError(stale.Confirm())
	err = s.repo.Save(s.ctx, stale)

	s.ErrorIs(err, domain.ErrOptimisticLock)
}

func (s *ReservationRepositorySuite) TestFindExpiredHoldsReturnsOnlyPastHolds() {
	expired := domain.NewReservation("event-1", types.CallerID("caller-1"), 1, nil, "hold-token-1", "idem-expired", -time.Minute)
	fresh := domain.NewReservation("event-1", types.CallerID("caller-1"), 1, nil, "hold-token-2", "idem-fresh", time.Hour)
	s.Require().NoError(s.repo.Save(s.ctx, expired))
	s.Require().NoError(s.repo.Save(s.ctx, fresh))

	got, err := s.repo.FindExpiredHolds(s.ctx, time.Now(), 10)

	s.Require().NoError(err)
	s.Len(got, 1)
	s.Equal(expired.ID(), got[0].ID())
}
