package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"pgregory.net/rapid"

	"membergate/internal/docstore"
	"membergate/internal/member/models"
	dErrors "membergate/pkg/domain-errors"
)

// =============================================================================
// Registry Test Suite
// =============================================================================
// The registry is the uniqueness backbone: if it ever hands two members the
// same number or lets two members claim one email, everything downstream is
// wrong. These tests exercise the conflict and allocation paths directly
// against the transactional store.

type RegistrySuite struct {
	suite.Suite
	store *docstore.Memory
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.store = docstore.NewMemory()
}

func (s *RegistrySuite) reserve(kind Kind, value, owner string) error {
	return s.store.RunTransaction(context.Background(), func(tx docstore.Tx) error {
		return Reserve(tx, kind, value, owner)
	})
}

// =============================================================================
// Reserve Tests
// =============================================================================

func (s *RegistrySuite) TestReserve() {
	s.Run("free value is claimed", func() {
		s.NoError(s.reserve(KindEmail, "a@example.org", "owner-1"))
	})

	s.Run("re-reserving for the same owner is idempotent", func() {
		s.Require().NoError(s.reserve(KindEmail, "b@example.org", "owner-1"))
		s.NoError(s.reserve(KindEmail, "b@example.org", "owner-1"))
	})

	s.Run("email owned by another member conflicts", func() {
		s.Require().NoError(s.reserve(KindEmail, "c@example.org", "owner-1"))
		err := s.reserve(KindEmail, "c@example.org", "owner-2")
		s.Error(err)
		s.True(dErrors.Is(err, dErrors.CodeConflict))
		s.Contains(err.Error(), "EMAIL_IN_USE")
	})

	s.Run("member number owned by another member conflicts", func() {
		s.Require().NoError(s.reserve(KindMemberNo, "INT-2025-000001", "owner-1"))
		err := s.reserve(KindMemberNo, "INT-2025-000001", "owner-2")
		s.Error(err)
		s.True(dErrors.Is(err, dErrors.CodeConflict))
		s.Contains(err.Error(), "MEMBERNO_IN_USE")
	})

	s.Run("conflicting reservation aborts the whole transaction", func() {
		s.Require().NoError(s.reserve(KindEmail, "held@example.org", "owner-1"))

		err := s.store.RunTransaction(context.Background(), func(tx docstore.Tx) error {
			if err := Reserve(tx, KindEmail, "new@example.org", "owner-2"); err != nil {
				return err
			}
			return Reserve(tx, KindEmail, "held@example.org", "owner-2")
		})
		s.Error(err)

		// The first reservation from the failed transaction must not exist.
		s.NoError(s.reserve(KindEmail, "new@example.org", "owner-3"))
	})
}

// =============================================================================
// Allocation Tests
// =============================================================================

func (s *RegistrySuite) TestAllocateMemberNo() {
	ctx := context.Background()

	s.Run("numbers are sequential from one", func() {
		var got []string
		for i := 0; i < 3; i++ {
			err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
				no, err := AllocateMemberNo(tx, "INT", 2025)
				if err != nil {
					return err
				}
				got = append(got, no)
				return nil
			})
			s.Require().NoError(err)
		}
		s.Equal([]string{"INT-2025-000001", "INT-2025-000002", "INT-2025-000003"}, got)
	})

	s.Run("each year has its own sequence", func() {
		err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
			no, err := AllocateMemberNo(tx, "INT", 2026)
			if err != nil {
				return err
			}
			s.Equal("INT-2026-000001", no)
			return nil
		})
		s.NoError(err)
	})

	s.Run("allocated numbers satisfy the canonical format", func() {
		err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
			no, err := AllocateMemberNo(tx, "ASSOC", 2025)
			if err != nil {
				return err
			}
			s.True(models.ValidMemberNo(no))
			return nil
		})
		s.NoError(err)
	})
}

func (s *RegistrySuite) TestConcurrentAllocationsAreDistinct() {
	ctx := context.Background()
	const workers = 8

	allocated := make(map[string]bool)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
				no, err := AllocateMemberNo(tx, "INT", 2025)
				if err != nil {
					return err
				}
				// Pairing allocation with reservation is the production
				// pattern; the registry entry makes double-allocation a
				// commit-time conflict.
				return Reserve(tx, KindMemberNo, no, "owner-"+no)
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	// Replay the counter to learn what was handed out.
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		for i := 1; i <= workers; i++ {
			no := models.FormatMemberNo("INT", 2025, i)
			var entry Entry
			if err := tx.Get(Collection, EntryKey(KindMemberNo, no), &entry); err != nil {
				return fmt.Errorf("missing %s: %w", no, err)
			}
			allocated[no] = true
		}
		return nil
	})
	s.NoError(err)
	s.Len(allocated, workers, "every number from 1..workers must be reserved exactly once")
}

// =============================================================================
// Property Tests
// =============================================================================

// TestAllocationSequenceProperty checks that for any interleaving of years,
// each year's numbers come out dense and strictly increasing.
func TestAllocationSequenceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := docstore.NewMemory()
		ctx := context.Background()

		years := rapid.SliceOfN(rapid.IntRange(2020, 2030), 1, 40).Draw(t, "years")
		perYear := make(map[int][]int)

		for _, year := range years {
			err := store.RunTransaction(ctx, func(tx docstore.Tx) error {
				no, err := AllocateMemberNo(tx, "INT", year)
				if err != nil {
					return err
				}
				var gotYear, seq int
				if _, err := fmt.Sscanf(no, "INT-%d-%d", &gotYear, &seq); err != nil {
					return err
				}
				perYear[year] = append(perYear[year], seq)
				return nil
			})
			if err != nil {
				t.Fatalf("allocate %d: %v", year, err)
			}
		}

		for year, seqs := range perYear {
			if !sort.IntsAreSorted(seqs) {
				t.Fatalf("year %d sequence not increasing: %v", year, seqs)
			}
			for i, seq := range seqs {
				if seq != i+1 {
					t.Fatalf("year %d has gap: position %d got %d", year, i, seq)
				}
			}
		}
	})
}
