package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

var ErrRunning = errors.New("listener already running")

type Options struct {
	Addr               string
	MaxConcurrentScans int
	ScanRatePerMinute  int
	ScanBurst          int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	Logger             *slog.Logger
}

// Listener serves the scan page and scan route while an event session is
// open. Each Start gets a fresh http.Server and worker pool.
type Listener struct {
	opts    Options
	scanner Scanner
	page    PageRenderer
	session EventSource

	mu   sync.Mutex
	srv  *http.Server
	ln   net.Listener
	pool *ants.Pool
	done chan struct{}
}

func NewListener(opts Options, scanner Scanner, page PageRenderer, session EventSource) *Listener {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.MaxConcurrentScans <= 0 {
		opts.MaxConcurrentScans = 64
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Listener{opts: opts, scanner: scanner, page: page, session: session}
}

// Start binds the address before returning so the caller sees port errors.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.srv != nil {
		return ErrRunning
	}

	ln, err := net.Listen("tcp", l.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", l.opts.Addr, err)
	}
	pool, err := ants.NewPool(l.opts.MaxConcurrentScans,
		ants.WithMaxBlockingTasks(l.opts.MaxConcurrentScans),
		ants.WithPanicHandler(func(v any) {
			l.opts.Logger.Error("scan worker panic", "panic", fmt.Sprint(v))
		}),
	)
	if err != nil {
		ln.Close()
		return fmt.Errorf("scan pool: %w", err)
	}

	// Scans not picked up by a worker within this window are refused,
	// leaving room to answer before the server's write deadline.
	scanTimeout := l.opts.WriteTimeout - l.opts.WriteTimeout/5
	handler := &Handler{
		Scanner:     l.scanner,
		Page:        l.page,
		Session:     l.session,
		Pool:        pool,
		ScanTimeout: scanTimeout,
		Logger:      l.opts.Logger,
	}
	srv := &http.Server{
		Handler: New(handler, RouteOptions{
			ScanRatePerMinute: l.opts.ScanRatePerMinute,
			ScanBurst:         l.opts.ScanBurst,
		}),
		ReadTimeout:  l.opts.ReadTimeout,
		WriteTimeout: l.opts.WriteTimeout,
		IdleTimeout:  30 * time.Second,
	}
	done := make(chan struct{})

	l.srv, l.ln, l.pool, l.done = srv, ln, pool, done

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.opts.Logger.Error("scan listener stopped", "err", err)
		}
	}()

	l.opts.Logger.Info("scan listener started", "addr", ln.Addr().String())
	return nil
}

// Stop refuses new connections and waits for in-flight requests until ctx
// expires, after which remaining connections are closed.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.srv == nil {
		return nil
	}

	err := l.srv.Shutdown(ctx)
	if err != nil {
		_ = l.srv.Close()
	}
	<-l.done
	if perr := l.pool.ReleaseTimeout(3 * time.Second); perr != nil && err == nil {
		err = perr
	}

	l.srv, l.ln, l.pool, l.done = nil, nil, nil, nil
	l.opts.Logger.Info("scan listener stopped")
	return err
}

// Addr is the bound address, or "" when not running.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return ""
	}
	return l.ln.Addr().String()
}
