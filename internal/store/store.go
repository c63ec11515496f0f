// Package store is the hybrid session store: a synchronous in-process memory tier
// in front of an optional durable backend (Redis).
//
// Writes land in memory immediately and are copied to the durable backend in the
// background, in order. Durable failures are logged and counted, never returned
// and never retried. Reads only consult memory; a miss schedules a background
// fetch from the durable backend so that a later read can succeed. Sync waits for
// all scheduled background work, which makes the window between the tiers
// observable.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const opTimeout = 5 * time.Second

// Options configures a Store.
type Options struct {
	CompositeTTL  time.Duration
	MapTTL        time.Duration
	SweepInterval time.Duration
	Logger        zerolog.Logger
}

// Stats is a snapshot of store counters.
type Stats struct {
	Backend        string       `json:"backend"`
	Durable        bool         `json:"durable"`
	Entries        map[Kind]int `json:"entries"`
	Writes         int64        `json:"writes"`
	FailedWrites   int64        `json:"failedWrites"`
	Backfills      int64        `json:"backfills"`
	Swept          int64        `json:"swept"`
	PendingDurable int          `json:"pendingDurable"`
}

// Store is safe for concurrent use. Concurrent writers to one key race; the last
// write wins in each tier.
type Store struct {
	mem    *MemoryBackend
	logger zerolog.Logger
	ttl    map[Kind]time.Duration

	mu       sync.RWMutex
	durable  Backend
	inflight map[string]struct{}

	qmu   sync.Mutex
	queue []func(Backend)
	wake  chan struct{}

	pending *tracker

	writes       atomic.Int64
	failedWrites atomic.Int64
	backfills    atomic.Int64
	swept        atomic.Int64

	ctx       context.Context
	cancel    context.CancelFunc
	bg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a store. durable may be nil for memory-only operation.
func New(durable Backend, opts Options) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		mem:    NewMemoryBackend(),
		logger: opts.Logger.With().Str("component", "store").Logger(),
		ttl: map[Kind]time.Duration{
			KindComposite: opts.CompositeTTL,
			KindMap:       opts.MapTTL,
		},
		durable:  durable,
		inflight: make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
		pending:  newTracker(),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.bg.Add(1)
	go s.writer()
	if opts.SweepInterval > 0 {
		s.bg.Add(1)
		go s.janitor(opts.SweepInterval)
	}
	return s
}

func storageKey(kind Kind, key string) string {
	return string(kind) + ":" + key
}

func (s *Store) backend() Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.durable
}

// Attach installs a durable backend, replacing memory-only operation. Writes made
// before attaching are not replayed.
func (s *Store) Attach(b Backend) {
	s.mu.Lock()
	s.durable = b
	s.mu.Unlock()
	s.logger.Info().Str("backend", b.Name()).Msg("durable store attached")
}

// Durable reports whether a durable backend is attached.
func (s *Store) Durable() bool {
	return s.backend() != nil
}

// TTL is the expiry applied to entries of kind; zero means none.
func (s *Store) TTL(kind Kind) time.Duration {
	return s.ttl[kind]
}

// Put writes value to memory and schedules the durable write. It only fails when
// value cannot be encoded.
func (s *Store) Put(kind Kind, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s %q: %w", kind, key, err)
	}
	k := storageKey(kind, key)
	ttl := s.ttl[kind]
	_ = s.mem.Set(context.Background(), k, data, ttl)
	s.writes.Add(1)

	if s.backend() != nil {
		s.enqueue(func(b Backend) {
			_ = s.durableSet(b, k, data, ttl)
		})
	}
	return nil
}

// PutSync writes value to memory and then waits for the durable write, returning
// its error. Without a durable backend it returns once memory is written.
func (s *Store) PutSync(ctx context.Context, kind Kind, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s %q: %w", kind, key, err)
	}
	k := storageKey(kind, key)
	ttl := s.ttl[kind]
	_ = s.mem.Set(ctx, k, data, ttl)
	s.writes.Add(1)

	if s.backend() == nil {
		return nil
	}
	ack := make(chan error, 1)
	s.enqueue(func(b Backend) {
		ack <- s.durableSet(b, k, data, ttl)
	})
	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) durableSet(b Backend, key string, data []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(s.ctx, opTimeout)
	defer cancel()
	if err := b.Set(ctx, key, data, ttl); err != nil {
		s.failedWrites.Add(1)
		s.logger.Warn().Err(err).Str("key", key).Msg("durable write failed")
		return err
	}
	return nil
}

// Get decodes the memory-tier value into dest. On a miss it schedules a durable
// backfill and reports false without waiting for it.
func (s *Store) Get(kind Kind, key string, dest any) (bool, error) {
	k := storageKey(kind, key)
	data, err := s.mem.Get(context.Background(), k)
	if errors.Is(err, ErrNotFound) {
		s.scheduleBackfill(kind, k)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decoding %s %q: %w", kind, key, err)
	}
	return true, nil
}

func (s *Store) scheduleBackfill(kind Kind, storageKey string) {
	b := s.backend()
	if b == nil || !s.claim(storageKey) {
		return
	}
	s.pending.add()
	go func() {
		defer s.pending.done()
		defer s.release(storageKey)
		s.backfillOne(b, kind, storageKey)
	}()
}

func (s *Store) backfillOne(b Backend, kind Kind, storageKey string) {
	ctx, cancel := context.WithTimeout(s.ctx, opTimeout)
	defer cancel()
	data, err := b.Get(ctx, storageKey)
	if errors.Is(err, ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", storageKey).Msg("durable read failed")
		return
	}
	if s.mem.SetIfAbsent(storageKey, data, s.ttl[kind]) {
		s.backfills.Add(1)
		s.logger.Debug().Str("key", storageKey).Msg("backfilled from durable store")
	}
}

// ListKeys returns the sorted memory-tier keys of kind and schedules a durable
// scan that backfills keys memory does not know yet.
func (s *Store) ListKeys(kind Kind) []string {
	prefix := storageKey(kind, "")
	keys, _ := s.mem.Keys(context.Background(), prefix)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = strings.TrimPrefix(k, prefix)
	}

	b := s.backend()
	if b != nil && s.claim("scan:"+prefix) {
		s.pending.add()
		go func() {
			defer s.pending.done()
			defer s.release("scan:" + prefix)
			ctx, cancel := context.WithTimeout(s.ctx, opTimeout)
			defer cancel()
			durableKeys, err := b.Keys(ctx, prefix)
			if err != nil {
				s.logger.Warn().Err(err).Str("prefix", prefix).Msg("durable scan failed")
				return
			}
			for _, k := range durableKeys {
				if _, err := s.mem.Get(ctx, k); err == nil {
					continue
				}
				s.backfillOne(b, kind, k)
			}
		}()
	}
	return out
}

// Delete removes key from memory, reporting whether it was present, and
// schedules the durable delete.
func (s *Store) Delete(kind Kind, key string) bool {
	k := storageKey(kind, key)
	present := s.mem.Del(context.Background(), k) == nil
	if s.backend() != nil {
		s.enqueue(func(b Backend) {
			ctx, cancel := context.WithTimeout(s.ctx, opTimeout)
			defer cancel()
			if err := b.Del(ctx, k); err != nil && !errors.Is(err, ErrNotFound) {
				s.logger.Warn().Err(err).Str("key", k).Msg("durable delete failed")
			}
		})
	}
	return present
}

// DeleteSync removes key from memory and waits for the durable delete. It
// reports whether either side held the key, so entries that only survive in
// the durable store after a restart still count as found. A durable failure
// is logged and leaves the memory result standing.
func (s *Store) DeleteSync(ctx context.Context, kind Kind, key string) (bool, error) {
	k := storageKey(kind, key)
	present := s.mem.Del(ctx, k) == nil
	if s.backend() == nil {
		return present, nil
	}
	ack := make(chan error, 1)
	s.enqueue(func(b Backend) {
		dctx, cancel := context.WithTimeout(s.ctx, opTimeout)
		defer cancel()
		ack <- b.Del(dctx, k)
	})
	select {
	case err := <-ack:
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, ErrNotFound):
			return present, nil
		default:
			s.logger.Warn().Err(err).Str("key", k).Msg("durable delete failed")
			return present, nil
		}
	case <-ctx.Done():
		return present, ctx.Err()
	}
}

func (s *Store) claim(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Store) release(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

// enqueue appends a durable operation to the ordered write queue.
func (s *Store) enqueue(op func(Backend)) {
	s.pending.add()
	s.qmu.Lock()
	s.queue = append(s.queue, op)
	s.qmu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Store) writer() {
	defer s.bg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}
		for {
			s.qmu.Lock()
			if len(s.queue) == 0 {
				s.qmu.Unlock()
				break
			}
			op := s.queue[0]
			s.queue = s.queue[1:]
			s.qmu.Unlock()

			if b := s.backend(); b != nil {
				op(b)
			}
			s.pending.done()
		}
	}
}

func (s *Store) janitor(every time.Duration) {
	defer s.bg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep removes expired memory entries now.
func (s *Store) Sweep() int {
	n := s.mem.Sweep()
	if n > 0 {
		s.swept.Add(int64(n))
		s.logger.Debug().Int("removed", n).Msg("swept expired entries")
	}
	return n
}

// Sync waits until every scheduled durable write, delete and backfill finished.
func (s *Store) Sync(ctx context.Context) error {
	return s.pending.wait(ctx)
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	st := Stats{
		Backend:        "memory",
		Entries:        make(map[Kind]int),
		Writes:         s.writes.Load(),
		FailedWrites:   s.failedWrites.Load(),
		Backfills:      s.backfills.Load(),
		Swept:          s.swept.Load(),
		PendingDurable: s.pending.count(),
	}
	if b := s.backend(); b != nil {
		st.Backend = b.Name()
		st.Durable = true
	}
	for _, kind := range []Kind{KindComposite, KindMap} {
		keys, _ := s.mem.Keys(context.Background(), storageKey(kind, ""))
		st.Entries[kind] = len(keys)
	}
	return st
}

// Ping checks the durable backend. It returns nil in memory-only mode.
func (s *Store) Ping(ctx context.Context) error {
	if b := s.backend(); b != nil {
		return b.Ping(ctx)
	}
	return nil
}

// Close waits for pending work (bounded by ctx), stops background goroutines and
// closes the durable backend.
func (s *Store) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		err = s.Sync(ctx)
		s.cancel()
		s.bg.Wait()
		if b := s.backend(); b != nil {
			if cerr := b.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}

// tracker counts outstanding background operations.
type tracker struct {
	mu   sync.Mutex
	n    int
	idle chan struct{} // closed while n == 0
}

func newTracker() *tracker {
	t := &tracker{idle: make(chan struct{})}
	close(t.idle)
	return t
}

func (t *tracker) add() {
	t.mu.Lock()
	if t.n == 0 {
		t.idle = make(chan struct{})
	}
	t.n++
	t.mu.Unlock()
}

func (t *tracker) done() {
	t.mu.Lock()
	t.n--
	if t.n == 0 {
		close(t.idle)
	}
	t.mu.Unlock()
}

func (t *tracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}

func (t *tracker) wait(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
