package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"membergate/pkg/platform/sentinel"
)

// =============================================================================
// Memory Store Test Suite
// =============================================================================
// The memory backend is the reference implementation of the transaction
// contract: optimistic validation, buffered writes, create-if-absent. Every
// other store user (registry, guard, rate limiter) leans on these semantics.

type MemoryStoreSuite struct {
	suite.Suite
	store *Memory
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemory()
}

type doc struct {
	Value int    `json:"value"`
	Note  string `json:"note"`
}

// =============================================================================
// Basic Transaction Tests
// =============================================================================

func (s *MemoryStoreSuite) TestGetPut() {
	ctx := context.Background()

	s.Run("get missing document returns not found", func() {
		err := s.store.RunTransaction(ctx, func(tx Tx) error {
			var d doc
			return tx.Get("docs", "missing", &d)
		})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("put then get round-trips", func() {
		err := s.store.RunTransaction(ctx, func(tx Tx) error {
			return tx.Put("docs", "a", doc{Value: 7, Note: "seven"})
		})
		s.Require().NoError(err)

		var got doc
		err = s.store.RunTransaction(ctx, func(tx Tx) error {
			return tx.Get("docs", "a", &got)
		})
		s.NoError(err)
		s.Equal(7, got.Value)
		s.Equal("seven", got.Note)
	})

	s.Run("reads see buffered writes within the transaction", func() {
		err := s.store.RunTransaction(ctx, func(tx Tx) error {
			if err := tx.Put("docs", "b", doc{Value: 1}); err != nil {
				return err
			}
			var d doc
			if err := tx.Get("docs", "b", &d); err != nil {
				return err
			}
			s.Equal(1, d.Value)
			return nil
		})
		s.NoError(err)
	})

	s.Run("failed transaction commits nothing", func() {
		boom := errors.New("boom")
		err := s.store.RunTransaction(ctx, func(tx Tx) error {
			if err := tx.Put("docs", "rollback", doc{Value: 9}); err != nil {
				return err
			}
			return boom
		})
		s.ErrorIs(err, boom)

		err = s.store.RunTransaction(ctx, func(tx Tx) error {
			var d doc
			return tx.Get("docs", "rollback", &d)
		})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestCreate() {
	ctx := context.Background()

	s.Run("create succeeds when absent", func() {
		err := s.store.RunTransaction(ctx, func(tx Tx) error {
			return tx.Create("docs", "fresh", doc{Value: 1})
		})
		s.NoError(err)
	})

	s.Run("create of existing key conflicts", func() {
		err := s.store.RunTransaction(ctx, func(tx Tx) error {
			return tx.Create("docs", "dup", doc{Value: 1})
		})
		s.Require().NoError(err)

		err = s.store.RunTransaction(ctx, func(tx Tx) error {
			return tx.Create("docs", "dup", doc{Value: 2})
		})
		s.ErrorIs(err, sentinel.ErrConflict)

		var got doc
		err = s.store.RunTransaction(ctx, func(tx Tx) error {
			return tx.Get("docs", "dup", &got)
		})
		s.NoError(err)
		s.Equal(1, got.Value, "losing create must not overwrite")
	})
}

func (s *MemoryStoreSuite) TestDelete() {
	ctx := context.Background()

	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		return tx.Put("docs", "gone", doc{Value: 3})
	})
	s.Require().NoError(err)

	err = s.store.RunTransaction(ctx, func(tx Tx) error {
		return tx.Delete("docs", "gone")
	})
	s.Require().NoError(err)

	err = s.store.RunTransaction(ctx, func(tx Tx) error {
		var d doc
		return tx.Get("docs", "gone", &d)
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func (s *MemoryStoreSuite) TestConcurrentReadModifyWrite() {
	ctx := context.Background()

	// Each validation failure means another worker committed, so a worker can
	// lose at most workers-1 races; keeping workers below maxAttempts makes
	// success deterministic.
	const workers = maxAttempts - 1

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.store.RunTransaction(ctx, func(tx Tx) error {
				var d doc
				if err := tx.Get("docs", "counter", &d); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
					return err
				}
				d.Value++
				return tx.Put("docs", "counter", d)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	var got doc
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		return tx.Get("docs", "counter", &got)
	})
	s.NoError(err)
	s.Equal(workers, got.Value, "no increment may be lost")
}

func (s *MemoryStoreSuite) TestConcurrentCreateSingleWinner() {
	ctx := context.Background()
	const workers = 16

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results <- s.store.RunTransaction(ctx, func(tx Tx) error {
				return tx.Create("docs", "race", doc{Value: n})
			})
		}(i)
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
		} else {
			s.ErrorIs(err, sentinel.ErrConflict)
		}
	}
	s.Equal(1, winners, "exactly one concurrent create may commit")
}
