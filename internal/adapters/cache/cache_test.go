package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/leadrank/internal/adapters/cache"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type failingBackend struct{}

func (failingBackend) Get(context.Context, string) (cache.Entry, bool, error) {
	return cache.Entry{}, false, cache.ErrBackend
}
func (failingBackend) Set(context.Context, string, cache.Entry) error { return cache.ErrBackend }
func (failingBackend) Delete(context.Context, string) error          { return cache.ErrBackend }

func newCache(clock *fakeClock) (*cache.Cache, *cache.MemoryBackend) {
	backend := cache.NewMemoryBackend(cache.WithMemoryClock(clock.Now))
	return cache.New(backend, cache.WithClock(clock.Now), cache.WithComputeTimeout(5*time.Second)), backend
}

func TestKey(t *testing.T) {
	Convey("Given enrichment keys", t, func() {
		So(cache.Key{Subject: "sarah mitchell", Item: "3917422", Kind: cache.KindAbstract}.String(),
			ShouldEqual, "enrichment:sarah mitchell:3917422:abstract")
		So(cache.Key{Subject: "sarah mitchell", Kind: cache.KindSearch}.String(),
			ShouldEqual, "enrichment:sarah mitchell:search")
	})
}

func TestGetSetInvalidate(t *testing.T) {
	Convey("Given a cache over the memory backend", t, func() {
		ctx := context.Background()
		clock := newFakeClock()
		c, backend := newCache(clock)
		defer backend.Close()
		key := cache.Key{Subject: "james chen", Item: "1", Kind: cache.KindRelevance}

		Convey("When a value is set", func() {
			So(c.Set(ctx, key, []byte("HIGH"), time.Hour), ShouldBeNil)

			Convey("Then it is returned while fresh", func() {
				r, ok := c.Get(ctx, key)
				So(ok, ShouldBeTrue)
				So(string(r.Value), ShouldEqual, "HIGH")
				So(r.TTL, ShouldEqual, time.Hour)
				So(r.FetchedAt, ShouldEqual, clock.Now())
			})

			Convey("Then it is never returned once the TTL has elapsed", func() {
				clock.Advance(time.Hour)
				_, ok := c.Get(ctx, key)
				So(ok, ShouldBeFalse)
			})

			Convey("Then invalidation removes it", func() {
				So(c.Invalidate(ctx, key), ShouldBeNil)
				_, ok := c.Get(ctx, key)
				So(ok, ShouldBeFalse)
			})

			Convey("Then a sweep drops it after expiry", func() {
				clock.Advance(2 * time.Hour)
				backend.Sweep()
				So(backend.Len(), ShouldEqual, 0)
			})
		})

		Convey("When a non-positive TTL is used", func() {
			So(c.Set(ctx, key, []byte("x"), 0), ShouldBeNil)
			_, ok := c.Get(ctx, key)
			So(ok, ShouldBeFalse)
		})
	})
}

func TestGetOrCompute(t *testing.T) {
	Convey("Given a cache", t, func() {
		ctx := context.Background()
		clock := newFakeClock()
		c, backend := newCache(clock)
		defer backend.Close()
		key := cache.Key{Subject: "emily park", Kind: cache.KindSearch}

		Convey("When 50 callers ask for the same missing key at once", func() {
			var computations atomic.Int64
			start := make(chan struct{})
			var wg sync.WaitGroup
			results := make([]string, 50)
			errs := make([]error, 50)
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					v, err := c.GetOrCompute(ctx, key, time.Hour, func(ctx context.Context) ([]byte, error) {
						computations.Add(1)
						time.Sleep(50 * time.Millisecond)
						return []byte("ids"), nil
					})
					results[i], errs[i] = string(v), err
				}(i)
			}
			close(start)
			wg.Wait()

			Convey("Then exactly one computation ran and everyone got its result", func() {
				So(computations.Load(), ShouldEqual, 1)
				for i := range results {
					So(errs[i], ShouldBeNil)
					So(results[i], ShouldEqual, "ids")
				}
			})
		})

		Convey("When the key is already cached", func() {
			So(c.Set(ctx, key, []byte("cached"), time.Hour), ShouldBeNil)
			called := false
			v, err := c.GetOrCompute(ctx, key, time.Hour, func(ctx context.Context) ([]byte, error) {
				called = true
				return nil, nil
			})

			Convey("Then the computation is skipped", func() {
				So(err, ShouldBeNil)
				So(string(v), ShouldEqual, "cached")
				So(called, ShouldBeFalse)
			})
		})

		Convey("When the computation fails", func() {
			boom := errors.New("upstream down")
			_, err := c.GetOrCompute(ctx, key, time.Hour, func(ctx context.Context) ([]byte, error) { return nil, boom })
			So(errors.Is(err, boom), ShouldBeTrue)

			Convey("Then the failure is not cached", func() {
				v, err := c.GetOrCompute(ctx, key, time.Hour, func(ctx context.Context) ([]byte, error) { return []byte("ok"), nil })
				So(err, ShouldBeNil)
				So(string(v), ShouldEqual, "ok")
			})
		})

		Convey("When the first caller gives up while the computation is running", func() {
			release := make(chan struct{})
			callerCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() {
				_, err := c.GetOrCompute(callerCtx, key, time.Hour, func(fctx context.Context) ([]byte, error) {
					<-release
					if fctx.Err() != nil {
						return nil, fctx.Err()
					}
					return []byte("late"), nil
				})
				done <- err
			}()
			time.Sleep(20 * time.Millisecond)
			cancel()
			err := <-done
			close(release)

			Convey("Then only the caller's wait ends and the result still fills the cache", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				deadline := time.Now().Add(2 * time.Second)
				var got string
				for time.Now().Before(deadline) {
					if r, ok := c.Get(ctx, key); ok {
						got = string(r.Value)
						break
					}
					time.Sleep(5 * time.Millisecond)
				}
				So(got, ShouldEqual, "late")
			})
		})
	})
}

func TestGetOrComputeJSON(t *testing.T) {
	Convey("Given a typed computation", t, func() {
		ctx := context.Background()
		c, backend := newCache(newFakeClock())
		defer backend.Close()
		key := cache.Key{Subject: "lisa wilson", Kind: cache.KindSearch}
		var calls int

		fetch := func(ctx context.Context) ([]string, error) {
			calls++
			return []string{"39001", "38874"}, nil
		}

		first, err := cache.GetOrComputeJSON(ctx, c, key, time.Hour, fetch)
		So(err, ShouldBeNil)
		second, err := cache.GetOrComputeJSON(ctx, c, key, time.Hour, fetch)
		So(err, ShouldBeNil)

		Convey("Then the decoded value round trips through the cache", func() {
			So(first, ShouldResemble, []string{"39001", "38874"})
			So(second, ShouldResemble, first)
			So(calls, ShouldEqual, 1)
		})

		Convey("Then undecodable entries are reported and dropped", func() {
			bad := cache.Key{Subject: "lisa wilson", Kind: cache.KindRelevance}
			So(c.Set(ctx, bad, []byte("{not json"), time.Hour), ShouldBeNil)
			_, err := cache.GetOrComputeJSON(ctx, c, bad, time.Hour, fetch)
			So(errors.Is(err, cache.ErrDecode), ShouldBeTrue)
			_, ok := c.Get(ctx, bad)
			So(ok, ShouldBeFalse)
		})
	})
}

func TestBackendFailure(t *testing.T) {
	Convey("Given a backend that always fails", t, func() {
		c := cache.New(failingBackend{})
		key := cache.Key{Subject: "david kumar", Kind: cache.KindSearch}

		Convey("Then reads degrade to misses and computations still return", func() {
			_, ok := c.Get(context.Background(), key)
			So(ok, ShouldBeFalse)
			v, err := c.GetOrCompute(context.Background(), key, time.Hour, func(ctx context.Context) ([]byte, error) {
				return []byte("fresh"), nil
			})
			So(err, ShouldBeNil)
			So(string(v), ShouldEqual, "fresh")
		})
	})
}
