package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/traffic-tacos/reservation-core/internal/reservation/domain"
	"github.com/traffic-tacos/reservation-core/internal/store/postgres"
)

type IdempotencyStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *postgres.IdempotencyStore
}

func TestIdempotencyStoreSuite(t *testing.T) {
	suite.Run(t, new(IdempotencyStoreSuite))
}

func (s *IdempotencyStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(truncateTables(s.ctx, getTestPool()))
	s.store = postgres.NewIdempotencyStore(getTestPool())
}

func (s *IdempotencyStoreSuite) entry(key string, ttl time.Duration) *domain.IdempotencyEntry {
	now := time.Now()
	return &domain.IdempotencyEntry{
		IdempotencyKey:     key,
		RequestFingerprint: "fingerprint-1",
		ResourceID:         "resource-1",
		StatusCode:         201,
		ResponseBody:       []byte(`{"reservation_id":"r-1"}`),
		CreatedAt:          now,
		ExpiresAt:          now.Add(ttl),
	}
}

func (s *IdempotencyStoreSuite) TestGetReturnsNilWhenAbsent() {
	got, err := s.store.Get(s.ctx, "missing-key")

	s.Require().NoError(err)
	s.Nil(got)
}

func (s *IdempotencyStoreSuite) TestSetIfAbsentCreatesThenBlocksSecondWrite() {
	e := s.entry("key-1", 5*time.Minute)

	created, existing, err := s.store.SetIfAbsent(s.ctx, e)
	s.Require().NoError(err)
	s.True(created)
	s.Nil(existing)

	created, existing, err = s.store.SetIfAbsent(s.ctx, s.entry("key-1", 5*time.Minute))
	s.Require().NoError(err)
	s.False(created)
	s.Require().NotNil(existing)
	s.Equal("fingerprint-1", existing.RequestFingerprint)
}

func (s *IdempotencyStoreSuite) TestGetReturnsLiveEntry() {
	e := s.entry("key-2", 5*time.Minute)
	created, _, err := s.store.SetIfAbsent(s.ctx, e)
	s.Require().NoError(err)
	s.Require().True(created)

	got, err := s.store.Get(s.ctx, "key-2")

	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(e.ResourceID, got.ResourceID)
	s.Equal(e.StatusCode, got.StatusCode)
}

func (s *IdempotencyStoreSuite) TestGetIgnoresExpiredEntry() {
	e := s.entry("key-3", -time.Minute)
	created, _, err := s.store.SetIfAbsent(s.ctx, e)
	s.Require().NoError(err)
	s.Require().True(created)

	got, err := s.store.Get(s.ctx, "key-3")

	s.Require().NoError(err)
	s.Nil(got)
}

func (s *IdempotencyStoreSuite) TestPruneExpiredDeletesOnlyExpiredRows() {
	_, _, err := s.store.SetIfAbsent(s.ctx, s.entry("key-expired", -time.Minute))
	s.Require().NoError(err)
	_, _, err = s.store.SetIfAbsent(s.ctx, s.entry("key-live", time.Hour))
	s.Require().NoError(err)

	deleted, err := s.store.PruneExpired(s.ctx, time.Now())

	s.Require().NoError(err)
	s.Equal(int64(1), deleted)
}
