package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/merkelview/merkel-server/internal/logger"
	"github.com/merkelview/merkel-server/internal/model"
	"github.com/merkelview/merkel-server/internal/retry"
)

// SnapshotFunc receives the full, newest-first location snapshot after every
// change. Snapshots are delivered one at a time in the order the changes
// landed.
type SnapshotFunc func([]model.Location)

// ErrorFunc receives feed errors. The subscription stays alive after a
// failed reload; the next change triggers another attempt.
type ErrorFunc func(error)

// Feed maintains the live location subscription. At most one subscription is
// active; Subscribe tears down the previous one before installing the new
// listener pair.
type Feed struct {
	store  model.LocationStore
	logger *logger.Logger

	mu      sync.Mutex
	current *feedSubscription
	cache   []model.Location
}

type feedSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	notify chan struct{}
}

func NewFeed(store model.LocationStore, logger *logger.Logger) *Feed {
	return &Feed{store: store, logger: logger}
}

var _ ChangeNotifier = (*Feed)(nil)

// Subscribe installs onSnapshot/onError as the active listener pair,
// replacing any previous subscription. The initial snapshot is loaded and
// delivered before Subscribe returns; subsequent snapshots are delivered
// from a single goroutine so they arrive in change order.
func (f *Feed) Subscribe(ctx context.Context, onSnapshot SnapshotFunc, onError ErrorFunc) error {
	f.teardown()

	snapshot, err := f.load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load initial snapshot: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &feedSubscription{
		cancel: cancel,
		done:   make(chan struct{}),
		notify: make(chan struct{}, 1),
	}

	f.mu.Lock()
	f.current = sub
	f.cache = snapshot
	f.mu.Unlock()

	onSnapshot(snapshot)

	go f.run(subCtx, sub, onSnapshot, onError)

	f.logger.Info("Location feed: subscription started", "locations", len(snapshot))
	return nil
}

// Unsubscribe tears down the active subscription and clears the cached
// snapshot. Safe to call when no subscription is active.
func (f *Feed) Unsubscribe() {
	f.teardown()
	f.mu.Lock()
	f.cache = nil
	f.mu.Unlock()
	f.logger.Info("Location feed: subscription stopped")
}

// NotifyChanged schedules a reload on the active subscription. Signals
// arriving while a reload is in flight coalesce into one trailing reload, so
// the delivered snapshot always reflects the latest change.
func (f *Feed) NotifyChanged() {
	f.mu.Lock()
	sub := f.current
	f.mu.Unlock()
	if sub == nil {
		return
	}
	select {
	case sub.notify <- struct{}{}:
	default:
	}
}

// Snapshot returns the most recently delivered snapshot.
func (f *Feed) Snapshot() []model.Location {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Location, len(f.cache))
	copy(out, f.cache)
	return out
}

func (f *Feed) run(ctx context.Context, sub *feedSubscription, onSnapshot SnapshotFunc, onError ErrorFunc) {
	defer close(sub.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.notify:
		}

		snapshot, err := f.load(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.logger.Error("Location feed: reload failed", "error", err.Error())
			onError(model.NewPersistenceError("reload locations", err))
			continue
		}

		f.mu.Lock()
		stale := f.current != sub
		if !stale {
			f.cache = snapshot
		}
		f.mu.Unlock()
		if stale {
			return
		}

		onSnapshot(snapshot)
	}
}

func (f *Feed) load(ctx context.Context) ([]model.Location, error) {
	var snapshot []model.Location
	err := retry.Do(ctx, retry.DefaultAttempts, retry.DefaultBaseDelay, func() error {
		var err error
		snapshot, err = f.store.ListAll(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (f *Feed) teardown() {
	f.mu.Lock()
	sub := f.current
	f.current = nil
	f.mu.Unlock()
	if sub == nil {
		return
	}
	sub.cancel()
	<-sub.done
}
