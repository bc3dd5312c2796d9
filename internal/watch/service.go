// Package watch is the polling pipeline: on a cron schedule it sweeps every
// active route and trip, fetches the current price through the collaborator,
// classifies it, consults the notification gate and dispatches what the gate
// allows. Delivery failures feed the blocked-user detector; a confirmed block
// triggers the cleanup cascade.
//
// Each target is an independent job; there is no ordering between targets.
// Per-target ordering lives in the store's transactions, not here.
package watch

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"farebot/internal/classify"
	"farebot/internal/cleanup"
	"farebot/internal/delivery"
	"farebot/internal/gate"
	"farebot/internal/storage"
	"farebot/internal/track"
	logx "farebot/pkg/logx"
)

type Service struct {
	mu sync.Mutex

	cfg      Config
	store    *storage.Store
	fetcher  Fetcher
	gate     *gate.Gate
	cleanup  *cleanup.Service
	dispatch delivery.Dispatcher
	// policy returns the current classifier thresholds; reading it per job
	// lets config hot reload take effect without a restart.
	policy func() classify.Policy
	log    logx.Logger

	limiter *rate.Limiter
	queue   chan job
	cron    *cron.Cron
	stopCh  chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

func New(cfg Config, store *storage.Store, fetcher Fetcher, g *gate.Gate, cl *cleanup.Service,
	dispatch delivery.Dispatcher, policy func() classify.Policy, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	qs := cfg.QueueSize
	if qs <= 0 {
		qs = 256
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		fetcher:  fetcher,
		gate:     g,
		cleanup:  cl,
		dispatch: dispatch,
		policy:   policy,
		log:      log,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
		queue:    make(chan job, qs),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Info("watch disabled")
		return nil
	}

	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	queue := s.queue
	stopCh := s.stopCh
	runCtx := s.runCtx

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in watch worker",
						logx.Int("worker", idx), logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue)
		}()
	}

	spec := s.cfg.Schedule
	if spec == "" {
		spec = "@every 5m"
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { s.Sweep(runCtx) }); err != nil {
		close(s.stopCh)
		s.stopCh = nil
		s.runCancel()
		return err
	}
	c.Start()
	s.cron = c

	s.log.Info("watch started", logx.Int("workers", workers), logx.String("schedule", spec))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	s.stopCh = nil
	cancel := s.runCancel
	s.runCancel = nil
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		c.Stop()
	}
	close(stopCh)
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("watch stopped")
	case <-ctx.Done():
		// stop continues in background
	}
}

// Sweep enqueues every active target for one poll pass. It is also the
// manual "refresh now" entry point.
func (s *Service) Sweep(ctx context.Context) {
	routes, err := s.store.ListActiveRoutes(ctx)
	if err != nil {
		s.log.Error("sweep: list routes", logx.Err(err))
		return
	}
	trips, err := s.store.ListActiveTrips(ctx)
	if err != nil {
		s.log.Error("sweep: list trips", logx.Err(err))
		return
	}

	enqueued, dropped := 0, 0
	for _, r := range routes {
		if s.enqueue(job{target: track.Target{Kind: track.KindRoute, ID: r.ID}}) {
			enqueued++
		} else {
			dropped++
		}
	}
	for _, t := range trips {
		if s.enqueue(job{target: track.Target{Kind: track.KindTrip, ID: t.ID}}) {
			enqueued++
		} else {
			dropped++
		}
	}

	if dropped > 0 {
		s.log.Warn("sweep queue full, targets skipped until next sweep",
			logx.Int("enqueued", enqueued), logx.Int("dropped", dropped))
	} else {
		s.log.Debug("sweep enqueued", logx.Int("targets", enqueued))
	}
}

func (s *Service) enqueue(j job) bool {
	select {
	case s.queue <- j:
		return true
	default:
		return false
	}
}

func nowUTC() time.Time { return time.Now().UTC() }
