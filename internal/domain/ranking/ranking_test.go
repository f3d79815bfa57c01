package ranking_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/leadrank/internal/adapters/repository"
	"github.com/okian/leadrank/internal/domain/model"
	"github.com/okian/leadrank/internal/domain/ranking"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2026, time.April, 1, 8, 0, 0, 0, time.UTC)

func lead(owner, id string, score int, age time.Duration) model.Lead {
	return model.Lead{ID: id, OwnerID: owner, Name: id, Score: score, Tier: model.TierFor(score), CreatedAt: t0.Add(age), UpdatedAt: t0.Add(age)}
}

// hookStore wraps a MemoryStore and lets tests interfere with passes.
type hookStore struct {
	*repository.MemoryStore
	beforeApply func(owner string)
	onSnapshot  func(owner string)
	applyErr    error
	applies     atomic.Int32
	inApply     atomic.Int32
	maxInApply  atomic.Int32
}

func (h *hookStore) Snapshot(ctx context.Context, owner string) (model.ScopeSnapshot, error) {
	if h.onSnapshot != nil {
		h.onSnapshot(owner)
	}
	return h.MemoryStore.Snapshot(ctx, owner)
}

func (h *hookStore) ApplyRanks(ctx context.Context, owner string, version int64, ranks []model.RankAssignment) error {
	n := h.inApply.Add(1)
	defer h.inApply.Add(-1)
	for {
		m := h.maxInApply.Load()
		if n <= m || h.maxInApply.CompareAndSwap(m, n) {
			break
		}
	}
	h.applies.Add(1)
	if h.beforeApply != nil {
		h.beforeApply(owner)
	}
	if h.applyErr != nil {
		return h.applyErr
	}
	time.Sleep(time.Millisecond)
	return h.MemoryStore.ApplyRanks(ctx, owner, version, ranks)
}

func ranksOf(ctx context.Context, s *repository.MemoryStore, owner string) map[string]int {
	snap, _ := s.Snapshot(ctx, owner)
	out := make(map[string]int, len(snap.Leads))
	for _, l := range snap.Leads {
		if l.Rank != nil {
			out[l.ID] = *l.Rank
		} else {
			out[l.ID] = 0
		}
	}
	return out
}

func newMaintainer(s ranking.Store) *ranking.Maintainer {
	return ranking.NewMaintainer(s, ranking.WithBackoff(time.Millisecond, 5*time.Millisecond), ranking.WithMaxAttempts(5))
}

func TestAssign(t *testing.T) {
	Convey("Given leads with ties", t, func() {
		leads := []model.Lead{
			lead("o", "d", 70, 3*time.Second),
			lead("o", "b", 70, time.Second),
			lead("o", "c", 70, time.Second),
			lead("o", "a", 90, 5*time.Second),
			lead("o", "e", 10, 0),
		}
		ranks := ranking.Assign(leads)

		Convey("Then higher scores rank first, then older leads, then lower IDs", func() {
			got := make([]string, len(ranks))
			for i, r := range ranks {
				got[i] = r.LeadID
				So(r.Rank, ShouldEqual, i+1)
			}
			So(got, ShouldResemble, []string{"a", "b", "c", "d", "e"})
		})

		Convey("Then the input order is untouched", func() {
			So(leads[0].ID, ShouldEqual, "d")
		})
	})
}

func TestRecompute(t *testing.T) {
	Convey("Given a scope of randomly scored leads", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		rng := rand.New(rand.NewSource(7))
		var leads []model.Lead
		for i := 0; i < 40; i++ {
			leads = append(leads, lead("owner-a", fmt.Sprintf("lead-%02d", i), rng.Intn(101), time.Duration(rng.Intn(5))*time.Second))
		}
		So(store.CreateMany(ctx, leads), ShouldBeNil)
		m := newMaintainer(store)

		So(m.Recompute(ctx, "owner-a"), ShouldBeNil)

		Convey("Then ranks are exactly 1..N", func() {
			got := ranksOf(ctx, store, "owner-a")
			seen := make(map[int]bool)
			for _, r := range got {
				So(r, ShouldBeBetweenOrEqual, 1, len(leads))
				So(seen[r], ShouldBeFalse)
				seen[r] = true
			}
			So(len(seen), ShouldEqual, len(leads))
		})

		Convey("Then a higher score always means a better rank", func() {
			snap, _ := store.Snapshot(ctx, "owner-a")
			for _, a := range snap.Leads {
				for _, b := range snap.Leads {
					if a.Score > b.Score {
						So(*a.Rank, ShouldBeLessThan, *b.Rank)
					}
				}
			}
		})

		Convey("Then the scope is consistent", func() {
			So(m.Status("owner-a"), ShouldEqual, ranking.Consistent)
		})
	})
}

func TestRecomputeConflicts(t *testing.T) {
	Convey("Given a mutation landing during a pass", t, func() {
		ctx := context.Background()
		mem := repository.NewMemoryStore()
		So(mem.CreateMany(ctx, []model.Lead{lead("o", "a", 40, 0), lead("o", "b", 60, 0)}), ShouldBeNil)
		store := &hookStore{MemoryStore: mem}
		var once sync.Once
		store.beforeApply = func(owner string) {
			once.Do(func() {
				_ = mem.Create(ctx, lead("o", "c", 99, time.Second))
			})
		}
		m := newMaintainer(store)

		err := m.Recompute(ctx, "o")

		Convey("Then the whole pass reruns against the latest snapshot", func() {
			So(err, ShouldBeNil)
			So(store.applies.Load(), ShouldEqual, 2)
			So(ranksOf(ctx, mem, "o"), ShouldResemble, map[string]int{"c": 1, "b": 2, "a": 3})
		})
	})

	Convey("Given a store that keeps failing", t, func() {
		ctx := context.Background()
		mem := repository.NewMemoryStore()
		So(mem.CreateMany(ctx, []model.Lead{lead("o", "a", 40, 0), lead("o", "b", 60, 0)}), ShouldBeNil)
		store := &hookStore{MemoryStore: mem, applyErr: errors.New("disk full")}
		m := newMaintainer(store)

		err := m.Recompute(ctx, "o")

		Convey("Then the failure surfaces after the attempt limit and no ranks are written", func() {
			So(errors.Is(err, ranking.ErrRecomputeFailed), ShouldBeTrue)
			So(store.applies.Load(), ShouldEqual, 5)
			So(ranksOf(ctx, mem, "o"), ShouldResemble, map[string]int{"a": 0, "b": 0})
			So(m.Status("o"), ShouldEqual, ranking.Stale)
		})
	})
}

func TestRecomputeSerialization(t *testing.T) {
	Convey("Given many concurrent recomputes and writes for one scope", t, func() {
		ctx := context.Background()
		mem := repository.NewMemoryStore()
		store := &hookStore{MemoryStore: mem}
		m := ranking.NewMaintainer(store, ranking.WithBackoff(time.Millisecond, 5*time.Millisecond), ranking.WithMaxAttempts(50))

		var wg sync.WaitGroup
		var failures atomic.Int32
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = mem.Create(ctx, lead("o", fmt.Sprintf("l-%02d", i), i*5, 0))
				m.MarkStale("o")
				if err := m.Recompute(ctx, "o"); err != nil {
					failures.Add(1)
				}
			}(i)
		}
		wg.Wait()
		So(m.Recompute(ctx, "o"), ShouldBeNil)

		Convey("Then write passes never overlapped and the final ranking is complete", func() {
			So(failures.Load(), ShouldEqual, 0)
			So(store.maxInApply.Load(), ShouldEqual, 1)
			got := ranksOf(ctx, mem, "o")
			So(len(got), ShouldEqual, 20)
			So(got["l-19"], ShouldEqual, 1)
			So(got["l-00"], ShouldEqual, 20)
			So(m.Status("o"), ShouldEqual, ranking.Consistent)
		})
	})
}

func TestRecomputeScopesIndependent(t *testing.T) {
	Convey("Given one scope blocked mid-pass", t, func() {
		ctx := context.Background()
		mem := repository.NewMemoryStore()
		So(mem.CreateMany(ctx, []model.Lead{lead("slow", "a", 1, 0), lead("fast", "b", 2, 0)}), ShouldBeNil)
		release := make(chan struct{})
		store := &hookStore{MemoryStore: mem, onSnapshot: func(owner string) {
			if owner == "slow" {
				<-release
			}
		}}
		m := newMaintainer(store)

		slowDone := make(chan error, 1)
		go func() { slowDone <- m.Recompute(ctx, "slow") }()
		time.Sleep(10 * time.Millisecond)

		Convey("Then other scopes still recompute", func() {
			done := make(chan error, 1)
			go func() { done <- m.Recompute(ctx, "fast") }()
			select {
			case err := <-done:
				So(err, ShouldBeNil)
			case <-time.After(2 * time.Second):
				So("fast scope blocked behind slow scope", ShouldBeEmpty)
			}
			So(m.Status("slow"), ShouldEqual, ranking.Recomputing)
			close(release)
			So(<-slowDone, ShouldBeNil)
		})
	})
}

func TestRecomputeSuperseded(t *testing.T) {
	Convey("Given a scope already ranked at its latest version", t, func() {
		ctx := context.Background()
		mem := repository.NewMemoryStore()
		So(mem.Create(ctx, lead("o", "a", 10, 0)), ShouldBeNil)
		store := &hookStore{MemoryStore: mem}
		m := newMaintainer(store)
		So(m.Recompute(ctx, "o"), ShouldBeNil)

		Convey("Then another pass writes nothing", func() {
			So(m.Recompute(ctx, "o"), ShouldBeNil)
			So(store.applies.Load(), ShouldEqual, 1)
		})

		Convey("Then marking stale and changing the scope triggers a write", func() {
			So(mem.Create(ctx, lead("o", "b", 20, 0)), ShouldBeNil)
			m.MarkStale("o")
			So(m.Status("o"), ShouldEqual, ranking.Stale)
			So(m.Recompute(ctx, "o"), ShouldBeNil)
			So(store.applies.Load(), ShouldEqual, 2)
			So(ranksOf(ctx, mem, "o"), ShouldResemble, map[string]int{"b": 1, "a": 2})
		})
	})
}
