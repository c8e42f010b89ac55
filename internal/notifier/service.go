package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"planwise/internal/eventbus"
	rtsup "planwise/internal/runtime/supervisor"
	"planwise/internal/transport"
	logx "planwise/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

type job struct {
	n        transport.Notification
	adapter  transport.Adapter
	dedupKey string
	claim    *claim
}

// claim is a dedup key held by one Notify call until its adapters settle.
type claim struct {
	key     string
	until   time.Time
	persist bool
	pending atomic.Int32
	sent    atomic.Bool
}

// Service implements queue + worker pool + rate limit + retry + dedup.
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log      logx.Logger
	adapters []transport.Adapter
	bus      eventbus.Bus
	store    DedupStore

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []transport.Notification
}

func New(cfg Config, adapters []transport.Adapter, log logx.Logger, bus eventbus.Bus, store DedupStore) *Service {
	s := &Service{
		adapters: adapters,
		log:      log.With(logx.String("comp", "notifier")),
		bus:      bus,
		store:    store,
		dedup:    map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

// Supervisor returns the internal supervisor (nil if not started).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Adapters lists the configured delivery channels by name.
func (s *Service) Adapters() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.adapters))
	for _, a := range s.adapters {
		out = append(out, a.Name())
	}
	return out
}

// Apply swaps the config. Worker count and queue size take effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 300
	}

	s.cfg = cfg
	// burst = rate per sec so short spikes don't block too hard
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start launches the workers. It is idempotent and a no-op while disabled.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	sup, q := s.sup, s.queue
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return s.exitReason(c, "worker")
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Info("notifier started", logx.Int("workers", workers), logx.Int("adapters", len(s.adapters)))
}

// exitReason turns a clean loop exit into nil during shutdown so the supervisor
// does not restart it.
func (s *Service) exitReason(c context.Context, what string) error {
	s.mu.Lock()
	stopping := s.stopDone != nil
	s.mu.Unlock()
	if stopping || c.Err() != nil {
		return nil
	}
	return fmt.Errorf("notifier %s exited unexpectedly", what)
}

// Stop stops intake and drains the queue best-effort until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())
		sup.Cancel()

		s.mu.Lock()
		s.queue, s.stopDone, s.sup = nil, nil, nil
		s.mu.Unlock()
		s.log.Info("notifier stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

// Notify enqueues n for every adapter. A suppressed duplicate returns nil.
// The dedup key is only kept once some adapter accepts the job; if every adapter
// drops or fails it, a later Notify with the same key goes through.
func (s *Service) Notify(ctx context.Context, n transport.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	cfg := s.cfg
	adapters := s.adapters
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.At.IsZero() {
		n.At = time.Now()
	}

	key := dedupKey(n)
	window := cfg.DedupWindow
	if n.DedupFor > 0 {
		window = n.DedupFor
	}
	var c *claim
	if window > 0 {
		persist := cfg.PersistDedup && s.store != nil
		until, ok := s.dedupClaim(ctx, key, window, cfg.DedupMaxEntries, persist)
		if !ok {
			s.publish(eventbus.NotificationDeduped, n, "", key, nil)
			s.log.Debug("notification suppressed", logx.String("key", key), logx.String("kind", string(n.Kind)))
			return nil
		}
		c = &claim{key: key, until: until, persist: persist}
		c.pending.Store(int32(len(adapters)))
	}

	accepted := 0
	for _, a := range adapters {
		select {
		case q <- job{n: n, adapter: a, dedupKey: key, claim: c}:
			accepted++
		default:
			s.publish(eventbus.NotificationDropped, n, a.Name(), key, ErrQueueFull)
			s.settle(c, false)
		}
	}
	if accepted > 0 || len(adapters) == 0 {
		s.appendHistory(n, cfg.HistorySize)
		s.publish(eventbus.NotificationQueued, n, "", key, nil)
	}
	if accepted < len(adapters) {
		return ErrQueueFull
	}
	return nil
}

// settle records one adapter outcome for c. The first delivery persists the key;
// when every adapter has settled without a delivery the key is released.
func (s *Service) settle(c *claim, delivered bool) {
	if c == nil {
		return
	}
	if delivered && c.sent.CompareAndSwap(false, true) && c.persist {
		ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		if err := s.store.PutDedup(ctx, c.key, c.until); err != nil {
			s.log.Debug("dedup persist failed", logx.String("key", c.key), logx.Err(err))
		}
		cancel()
	}
	if c.pending.Add(-1) == 0 && !c.sent.Load() {
		s.dmu.Lock()
		if until, ok := s.dedup[c.key]; ok && until.Equal(c.until) {
			delete(s.dedup, c.key)
		}
		s.dmu.Unlock()
		s.log.Debug("dedup key released", logx.String("key", c.key))
	}
}

// Snapshot returns the accepted notifications, oldest first.
func (s *Service) Snapshot() []transport.Notification {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]transport.Notification(nil), s.history...)
}

// Recent returns up to limit of userID's latest notifications, newest first.
func (s *Service) Recent(userID int64, limit int) []transport.Notification {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	out := make([]transport.Notification, 0, min(limit, len(s.history)))
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		if s.history[i].UserID == userID {
			out = append(out, s.history[i])
		}
	}
	return out
}

func (s *Service) appendHistory(n transport.Notification, size int) {
	s.hmu.Lock()
	s.history = append(s.history, n)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, n transport.Notification, adapter, key string, err error) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	ev := NotificationEvent{ID: n.ID, Adapter: adapter, Kind: string(n.Kind), UserID: n.UserID, Key: key, At: now}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(runCtx context.Context, j job) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	maxAttempts := 1 + cfg.RetryMax
	name := j.adapter.Name()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(runCtx); err != nil {
			s.settle(j.claim, false)
			return
		}

		callCtx, cancel := context.WithTimeout(runCtx, cfg.SendTimeout)
		err := j.adapter.Send(callCtx, j.n)
		cancel()
		if err == nil {
			s.settle(j.claim, true)
			s.publish(eventbus.NotificationSent, j.n, name, j.dedupKey, nil)
			return
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.String("adapter", name), logx.Err(err),
			logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-runCtx.Done():
			t.Stop()
			s.settle(j.claim, false)
			return
		}
	}

	s.settle(j.claim, false)
	s.log.Warn("notification undelivered", logx.String("adapter", name), logx.String("kind", string(j.n.Kind)), logx.Err(lastErr))
	s.publish(eventbus.NotificationFailed, j.n, name, j.dedupKey, lastErr)
}

func dedupKey(n transport.Notification) string {
	if n.DedupKey != "" {
		return n.DedupKey
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(n.Kind))
	_, _ = h.Write([]byte("|" + strconv.FormatInt(n.UserID, 10) + "|"))
	_, _ = h.Write([]byte(n.Title))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(n.Text))
	return strconv.FormatUint(h.Sum64(), 16)
}

// dedupClaim reserves key for window unless it is already held in memory or in the store.
func (s *Service) dedupClaim(ctx context.Context, key string, window time.Duration, maxEntries int, persist bool) (time.Time, bool) {
	now := time.Now()

	s.dmu.Lock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		s.dmu.Unlock()
		return time.Time{}, false
	}
	s.dmu.Unlock()

	// Cross-restart check (best-effort).
	if persist {
		cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		until, ok, err := s.store.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return time.Time{}, false
		}
	}

	until := now.Add(window)
	s.dmu.Lock()
	// A concurrent Notify may have claimed the key meanwhile.
	if prev, ok := s.dedup[key]; ok && now.Before(prev) {
		s.dmu.Unlock()
		return time.Time{}, false
	}
	s.dedup[key] = until
	for k, t := range s.dedup {
		if !now.Before(t) {
			delete(s.dedup, k)
		}
	}
	for len(s.dedup) > maxEntries {
		var (
			minKey string
			minT   time.Time
		)
		for k, t := range s.dedup {
			if minKey == "" || t.Before(minT) {
				minKey, minT = k, t
			}
		}
		delete(s.dedup, minKey)
	}
	s.dmu.Unlock()

	return until, true
}

// retryDelay is the wait before attempt+1: base * 2^(attempt-1), jittered by 0.7..1.3
// and capped at RetryMaxDelay.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}
