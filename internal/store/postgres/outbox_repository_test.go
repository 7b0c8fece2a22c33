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

type OutboxRepositorySuite struct {
	suite.Suite
	ctx  context.Context
	repo *postgres.OutboxRepository
}

func TestOutboxRepositorySuite(t *testing.T) {
	suite.Run(t, new(OutboxRepositorySuite))
}

func (s *OutboxRepositorySuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(truncateTables(s.ctx, getTestPool()))
	s.repo = postgres.NewOutboxRepository(getTestPool())
}

func (s *OutboxRepositorySuite) newEntry() *domain.OutboxEntry {
	now := time.Now()
	return &domain.OutboxEntry{
		ID:          domain.NewOutboxID(),
		EventType:   "reservation.created",
		AggregateID: domain.NewReservationID(),
		TraceID:     types.NewTraceID(),
		Payload:     []byte(`{"reservation_id":"r-1"}`),
		Status:      domain.OutboxStatusPending,
		NextRetryAt: now,
		CreatedAt:   now,
	}
}

func (s *OutboxRepositorySuite) TestAppendAndFetchUnpublished() {
	entry := s.newEntry()
	s.Require().NoError(s.repo.Append(s.ctx, entry))

	got, err := s.repo.FetchUnpublished(s.ctx, time.Now(), 10)

	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(entry.ID, got[0].ID)
	s.Equal(domain.OutboxStatusProcessing, got[0].Status)
	s.Nil(got[0].PublishedAt)
}

func (s *OutboxRepositorySuite) TestFetchUnpublishedLeasesRowsSoASecondFetchSeesNone() {
	entry := s.newEntry()
	s.Require().NoError(s.repo.Append(s.ctx, entry))

	_, err := s.repo.FetchUnpublished(s.ctx, time.Now(), 10)
	s.Require().NoError(err)

	got, err := s.repo.FetchUnpublished(s.ctx, time.Now(), 10)
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *OutboxRepositorySuite) TestMarkPublishedSetsPublishedAt() {
	entry := s.newEntry()
	s.Require().NoError(s.repo.Append(s.ctx, entry))
	leased, err := s.repo.FetchUnpublished(s.ctx, time.Now(), 10)
	s.Require().NoError(err)
	s.Require().Len(leased, 1)

	s.Require().NoError(s.repo.MarkPublished(s.ctx, leased[0].ID))

	rows, err := s.repo.FetchUnpublished(s.ctx, time.Now(), 10)
	s.Require().NoError(err)
	s.Empty(rows)
}

func (s *OutboxRepositorySuite) TestMarkFailedSchedulesRetry() {
	entry := s.newEntry()
	s.Require().NoError(s.repo.Append(s.ctx, entry))
	leased, err := s.repo.FetchUnpublished(s.ctx, time.Now(), 10)
	s.Require().NoError(err)
	s.Require().Len(leased, 1)

	retryAt := time.Now().Add(time.Hour)
	s.Require().NoError(s.repo.MarkFailed(s.ctx, leased[0].ID, domain.OutboxStatusFailed, 1, retryAt, "publish timed out"))

	got, err := s.repo.FetchUnpublished(s.ctx, time.Now(), 10)
	s.Require().NoError(err)
	s.Empty(got, "row should not be eligible until its next_retry_at has passed")

	got, err = s.repo.FetchUnpublished(s.ctx, retryAt.Add(time.Second), 10)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(1, got[0].Attempts)
	s.Equal("publish timed out", got[0].LastError)
}
