package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/docpulse/runtime-node/internal/errors"
	"github.com/docpulse/runtime-node/internal/metrics"
)

// ProbeFunc checks the backing store once. A nil error means the
// store answered.
type ProbeFunc func(ctx context.Context) error

// WatchdogConfig controls the probe loop and its retry policy
type WatchdogConfig struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

// Watchdog probes the backing store on a fixed cadence. A probe
// failure is retried a bounded number of times before the store is
// declared down; the next successful probe declares it recovered.
type Watchdog struct {
	cfg    WatchdogConfig
	target string
	probe  ProbeFunc

	onDown      func(error)
	onRecovered func()

	mu   sync.Mutex
	down bool

	logger  *zap.Logger
	metrics *metrics.Metrics

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// NewWatchdog creates a watchdog for the given probe. target is only
// used for log and error context. onDown fires once per outage after
// retries are exhausted, onRecovered once when the store answers
// again; either may be nil.
func NewWatchdog(cfg WatchdogConfig, target string, probe ProbeFunc, onDown func(error), onRecovered func(), m *metrics.Metrics, logger *zap.Logger) *Watchdog {
	return &Watchdog{
		cfg:         cfg,
		target:      target,
		probe:       probe,
		onDown:      onDown,
		onRecovered: onRecovered,
		logger:      logger,
		metrics:     m,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start launches the probe loop. It returns immediately.
func (w *Watchdog) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go w.run(ctx)
}

// Stop shuts the probe loop down
func (w *Watchdog) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
}

// Down reports whether the store is currently considered down
func (w *Watchdog) Down() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.down
}

func (w *Watchdog) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.cfg.ProbeInterval)
	defer ticker.Stop()

	w.logger.Info("watchdog started",
		zap.String("target", w.target),
		zap.Duration("probe_interval", w.cfg.ProbeInterval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

// check runs one probe cycle: a failing probe is retried before the
// outage is declared, and a success while down declares recovery.
func (w *Watchdog) check(ctx context.Context) {
	err := w.probeOnce(ctx)

	for attempt := 1; err != nil && attempt < w.cfg.MaxRetries; attempt++ {
		w.logger.Warn("store probe failed, retrying",
			zap.String("target", w.target),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", w.cfg.MaxRetries),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-time.After(w.cfg.RetryInterval):
		}
		err = w.probeOnce(ctx)
	}

	w.mu.Lock()
	wasDown := w.down
	w.down = err != nil
	w.mu.Unlock()

	switch {
	case err != nil && !wasDown:
		outage := errors.WatchdogFailure(w.target, w.cfg.MaxRetries, err)
		w.logger.Error("backing store declared down",
			zap.String("target", w.target),
			zap.Error(outage))
		if w.onDown != nil {
			w.onDown(outage)
		}
	case err == nil && wasDown:
		w.logger.Info("backing store recovered", zap.String("target", w.target))
		if w.onRecovered != nil {
			w.onRecovered()
		}
	}
}

func (w *Watchdog) probeOnce(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, w.cfg.ProbeTimeout)
	defer cancel()

	err := w.probe(probeCtx)
	if w.metrics != nil {
		w.metrics.RecordWatchdogProbe(err == nil)
	}
	return err
}

// FileProbe reports success while path exists and is accessible.
// Suitable when the store shares a filesystem with this node.
func FileProbe(path string) ProbeFunc {
	return func(ctx context.Context) error {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		return nil
	}
}

// GRPCProbe checks the store's standard gRPC health service. The
// returned closer releases the client connection.
func GRPCProbe(target string) (ProbeFunc, func() error, error) {
	conn, err := grpc.Dial(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	client := grpc_health_v1.NewHealthClient(conn)

	probe := func(ctx context.Context) error {
		resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
		if err != nil {
			return err
		}
		if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
			return fmt.Errorf("store reports status %s", resp.Status)
		}
		return nil
	}
	return probe, conn.Close, nil
}
