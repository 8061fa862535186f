// Package reaper periodically drops expired entries from in-memory caches.
// It never touches durable storage.
package reaper

import (
	"log"
	"sync"
	"time"
)

// DefaultInterval is used when New is given a non-positive interval.
const DefaultInterval = time.Hour

// Sweeper is a cache the reaper can sweep.
type Sweeper interface {
	// Name identifies the cache in logs and metrics.
	Name() string
	// Sweep removes entries expired at now and returns how many were removed.
	Sweep(now time.Time) int
}

// ReportFunc receives the per-cache eviction counts of one pass.
type ReportFunc func(evicted map[string]int)

// Reaper runs one background goroutine that sweeps every Sweeper on a fixed
// interval.
type Reaper struct {
	interval time.Duration
	sweepers []Sweeper
	nowF     func() time.Time
	report   ReportFunc

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New returns a stopped Reaper over sweepers.
func New(interval time.Duration, sweepers ...Sweeper) *Reaper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reaper{
		interval: interval,
		sweepers: sweepers,
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// SetReport installs fn to receive the results of every pass. Must be
// called before Start.
func (r *Reaper) SetReport(fn ReportFunc) { r.report = fn }

// Start launches the sweep loop. Calling Start on a running Reaper is a no-op.
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(r.stop, r.done)
}

// Stop ends the sweep loop and waits for it to exit. Safe to call more than
// once and on a Reaper that was never started.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stop, done := r.stop, r.done
	r.mu.Unlock()
	close(stop)
	<-done
}

// RunOnce sweeps every cache at now and returns the eviction count per cache.
func (r *Reaper) RunOnce(now time.Time) map[string]int {
	evicted := make(map[string]int, len(r.sweepers))
	for _, s := range r.sweepers {
		evicted[s.Name()] += s.Sweep(now)
	}
	if r.report != nil {
		r.report(evicted)
	}
	return evicted
}

func (r *Reaper) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			evicted := r.RunOnce(r.nowF())
			total := 0
			for _, n := range evicted {
				total += n
			}
			if total > 0 {
				log.Printf("reaper: evicted %d expired entries %v", total, evicted)
			}
		}
	}
}
