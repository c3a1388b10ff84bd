package steam

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	pollTick       = 250 * time.Millisecond
	maxPollBackoff = 10 * time.Second
)

type refresher interface {
	refresh() error
}

type pollEntry struct {
	name     string
	signal   refresher
	interval time.Duration

	nextDue  time.Time
	failures int
}

// Poller drives signal refreshes on per-signal intervals. A signal that
// keeps failing is retried with exponential backoff so an unavailable host
// is not hammered.
type Poller struct {
	mu      sync.Mutex
	entries []*pollEntry

	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller() *Poller {
	return &Poller{}
}

// Add registers a signal to refresh on the given interval.
func (p *Poller) Add(name string, signal refresher, interval time.Duration) {
	p.mu.Lock()
	p.entries = append(p.entries, &pollEntry{name: name, signal: signal, interval: interval})
	p.mu.Unlock()
}

// Start launches the polling goroutine. Every signal refreshes once
// immediately.
func (p *Poller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx)
}

// Stop halts polling and waits for the goroutine to exit.
func (p *Poller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(pollTick)
	defer ticker.Stop()

	p.refreshDue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refreshDue()
		}
	}
}

func (p *Poller) refreshDue() {
	now := time.Now()

	p.mu.Lock()
	due := make([]*pollEntry, 0, len(p.entries))
	for _, e := range p.entries {
		if now.Before(e.nextDue) {
			continue
		}
		due = append(due, e)
	}
	p.mu.Unlock()

	for _, e := range due {
		err := e.signal.refresh()

		p.mu.Lock()
		if err != nil {
			e.failures++
			backoff := e.interval * time.Duration(1<<uint(e.failures-1))
			if backoff > maxPollBackoff {
				backoff = maxPollBackoff
			}
			e.nextDue = now.Add(backoff)
			p.mu.Unlock()

			log.Debug().Err(err).Str("signal", e.name).Int("failures", e.failures).
				Msg("Signal refresh failed, backing off")
			continue
		}
		e.failures = 0
		e.nextDue = now.Add(e.interval)
		p.mu.Unlock()
	}
}
