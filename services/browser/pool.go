package browser

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"vidbridge/config"
	"vidbridge/internal/metrics"
)

// Pool manages P browser processes, one per fingerprint bucket, each
// hosting at most N tabs. Processes launch lazily on first acquisition and
// keep their fingerprint for their whole lifetime.
type Pool struct {
	cfg  config.BrowserSettings
	jars *JarStore

	mu      sync.Mutex
	procs   []*process
	next    int
	rng     *rand.Rand
	closed  bool
	acquire time.Duration
}

type process struct {
	bucket int
	fp     Fingerprint

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	started  bool

	tabSem chan struct{}
}

// NewPool builds the pool without launching anything.
func NewPool(cfg config.BrowserSettings, jars *JarStore) *Pool {
	size := cfg.PoolSize
	if size <= 0 {
		size = 4
	}
	tabs := cfg.TabsPerProcess
	if tabs <= 0 {
		tabs = 8
	}
	acquire := time.Duration(cfg.AcquireTimeoutSec) * time.Second
	if acquire <= 0 {
		acquire = 15 * time.Second
	}

	procs := make([]*process, size)
	for i := range procs {
		procs[i] = &process{
			bucket: i,
			fp:     ProfileForBucket(i),
			tabSem: make(chan struct{}, tabs),
		}
	}
	return &Pool{
		cfg:     cfg,
		jars:    jars,
		procs:   procs,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		acquire: acquire,
	}
}

// Acquire hands out a session slot, blocking up to the configured window
// when every tab slot is busy.
func (p *Pool) Acquire(ctx context.Context) (Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("browser pool is shut down")
	}
	proc := p.procs[p.next%len(p.procs)]
	p.next++
	p.mu.Unlock()

	deadline := time.NewTimer(p.acquire)
	defer deadline.Stop()

	select {
	case proc.tabSem <- struct{}{}:
	default:
		// Preferred bucket is full; take any free slot before blocking.
		if other := p.anyFreeSlot(); other != nil {
			proc = other
		} else {
			select {
			case proc.tabSem <- struct{}{}:
			case <-deadline.C:
				return nil, ErrPoolExhausted
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	if err := proc.ensureStarted(p.cfg); err != nil {
		<-proc.tabSem
		return nil, err
	}

	metrics.BrowserTabsActive.Inc()
	p.mu.Lock()
	seed := p.rng.Int63()
	p.mu.Unlock()
	return &session{pool: p, proc: proc, rng: rand.New(rand.NewSource(seed))}, nil
}

func (p *Pool) anyFreeSlot() *process {
	for _, proc := range p.procs {
		select {
		case proc.tabSem <- struct{}{}:
			return proc
		default:
		}
	}
	return nil
}

// Stats reports processes currently running and total pooled.
func (p *Pool) Stats() (active, pooled int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, proc := range p.procs {
		proc.mu.Lock()
		if proc.started {
			active++
		}
		proc.mu.Unlock()
	}
	return active, len(p.procs)
}

// Shutdown closes every launched browser process.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	procs := p.procs
	p.mu.Unlock()

	for _, proc := range procs {
		proc.mu.Lock()
		if proc.started && proc.browser != nil {
			if err := proc.browser.Close(); err != nil {
				log.Printf("[browser] close bucket %d: %v", proc.bucket, err)
			}
			proc.launcher.Cleanup()
			proc.started = false
			metrics.BrowserPoolActive.Dec()
		}
		proc.mu.Unlock()
	}
}

func (pr *process) ensureStarted(cfg config.BrowserSettings) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.started {
		return nil
	}

	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-infobars").
		Set("window-size", fmt.Sprintf("%d,%d", pr.fp.ScreenWidth, pr.fp.ScreenHeight))
	if cfg.BinPath != "" {
		l = l.Bin(cfg.BinPath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser for bucket %d: %w", pr.bucket, err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("connect browser for bucket %d: %w", pr.bucket, err)
	}

	pr.browser = b
	pr.launcher = l
	pr.started = true
	metrics.BrowserPoolActive.Inc()
	log.Printf("[browser] launched process for fingerprint bucket %d", pr.bucket)
	return nil
}

// session is one acquired tab slot.
type session struct {
	pool *Pool
	proc *process
	rng  *rand.Rand

	mu       sync.Mutex
	released bool
}

func (s *session) Fingerprint() Fingerprint { return s.proc.fp }

func (s *session) NewTab(ctx context.Context, url, referer string) (Tab, error) {
	page, err := stealth.Page(s.proc.browser)
	if err != nil {
		return nil, fmt.Errorf("open stealth page: %w", err)
	}

	tab := &rodTab{
		page: page,
		fp:   s.proc.fp,
		jars: s.pool.jars,
	}
	if err := tab.prepare(ctx, s.rng, url); err != nil {
		tab.Close()
		return nil, err
	}
	if err := tab.Navigate(ctx, url, referer); err != nil {
		tab.Close()
		return nil, err
	}
	return tab, nil
}

// Release frees the tab slot exactly once.
func (s *session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	<-s.proc.tabSem
	metrics.BrowserTabsActive.Dec()
}
