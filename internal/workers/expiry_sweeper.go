package workers

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"spendSmartAPI/internal/challenge"
)

const defaultBatchSize = 500

var (
	sweepResolved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "expiry_sweep_resolved_total",
		Help: "Overdue challenge instances resolved by the sweeper",
	})
	sweepFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "expiry_sweep_failures_total",
		Help: "Overdue challenge instances the sweeper failed to resolve",
	})
	sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "expiry_sweep_duration_seconds",
		Help:    "Duration of one expiry sweep",
		Buckets: prometheus.DefBuckets,
	})
)

// InitMetrics registers the sweeper metrics. Call this from main.go
func InitMetrics() {
	prometheus.MustRegister(sweepResolved, sweepFailures, sweepDuration)
}

// ExpiryResolver pages through overdue instances and resolves one at a time.
// ResolveChallenge reports false when the instance no longer needed it.
type ExpiryResolver interface {
	DueChallenges(ctx context.Context, after challenge.Cursor, limit int) ([]challenge.Instance, error)
	ResolveChallenge(ctx context.Context, inst challenge.Instance) (bool, error)
}

// Batch is the outcome of sweeping one page of due instances.
type Batch struct {
	Due      int
	Resolved int
	Failed   int
	Next     challenge.Cursor
}

// ExpirySweeper periodically resolves challenge instances whose time ran
// out. Each instance is resolved on its own; a failure is logged and the
// rest of the batch carries on.
type ExpirySweeper struct {
	resolver    ExpiryResolver
	interval    time.Duration
	concurrency int
	batchSize   int
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewExpirySweeper(resolver ExpiryResolver, interval time.Duration, concurrency int) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ExpirySweeper{
		resolver:    resolver,
		interval:    interval,
		concurrency: concurrency,
		batchSize:   defaultBatchSize,
		stopChan:    make(chan struct{}),
	}
}

// Start runs the sweep loop in the background until Stop.
func (s *ExpirySweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.interval)
				s.Run(ctx)
				cancel()
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Run pages through every instance that is due, once. Instances that fail
// are skipped and picked up again by the next run.
func (s *ExpirySweeper) Run(ctx context.Context) {
	start := time.Now()
	defer func() { sweepDuration.Observe(time.Since(start).Seconds()) }()

	var cursor challenge.Cursor
	resolved, failed := 0, 0
	for {
		b, err := s.Sweep(ctx, cursor)
		if err != nil {
			log.Printf("ExpirySweeper: failed to list due challenges: %v", err)
			return
		}
		resolved += b.Resolved
		failed += b.Failed
		if b.Due < s.batchSize || ctx.Err() != nil {
			break
		}
		cursor = b.Next
	}

	if resolved > 0 || failed > 0 {
		log.Printf("ExpirySweeper: resolved %d overdue challenges, %d failed", resolved, failed)
	}
}

// Sweep resolves the page of due instances that follows after.
func (s *ExpirySweeper) Sweep(ctx context.Context, after challenge.Cursor) (Batch, error) {
	due, err := s.resolver.DueChallenges(ctx, after, s.batchSize)
	if err != nil {
		return Batch{}, err
	}

	var resolved, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for _, inst := range due {
		g.Go(func() error {
			changed, err := s.resolver.ResolveChallenge(ctx, inst)
			if err != nil {
				log.Printf("ExpirySweeper: failed to resolve challenge %s for user %s: %v", inst.ID, inst.UserID, err)
				failed.Add(1)
				sweepFailures.Inc()
				return nil
			}
			if changed {
				resolved.Add(1)
				sweepResolved.Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	b := Batch{Due: len(due), Resolved: int(resolved.Load()), Failed: int(failed.Load()), Next: after}
	if len(due) > 0 {
		b.Next = challenge.CursorOf(due[len(due)-1])
	}
	return b, nil
}

// Stop the sweeper gracefully
func (s *ExpirySweeper) Stop() {
	s.stopOnce.Do(func() {
		log.Println("Stopping expiry sweeper...")
		close(s.stopChan)
		s.wg.Wait()
		log.Println("Expiry sweeper stopped")
	})
}
