package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjannette/finagg-backend/internal/logging"
	"github.com/kjannette/finagg-backend/internal/models"
)

var ErrRunInProgress = errors.New("import already in progress")

// Runner is implemented by importer.Importer.
type Runner interface {
	Run(ctx context.Context, location string) (*models.ImportSummary, error)
}

type ImportSchedulerConfig struct {
	Interval   time.Duration // e.g. 24*time.Hour
	Source     string        // path or URL re-imported on every tick
	RunTimeout time.Duration // per-run deadline
	RunOnStart bool
}

type ImportScheduler struct {
	runner Runner
	cfg    ImportSchedulerConfig
	log    *zap.SugaredLogger

	inFlight atomic.Bool

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    sync.WaitGroup
}

func NewImportScheduler(runner Runner, cfg ImportSchedulerConfig, log *zap.SugaredLogger) *ImportScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Minute
	}
	return &ImportScheduler{
		runner: runner,
		cfg:    cfg,
		log:    logging.OrNop(log).Named("scheduler"),
	}
}

func (s *ImportScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	if s.cfg.RunOnStart {
		s.done.Add(1)
		go func() {
			defer s.done.Done()
			s.tick(stopCh)
		}()
	}

	s.done.Add(1)
	go func() {
		defer s.done.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				s.tick(stopCh)
			}
		}
	}()

	s.log.Infow("started", "source", s.cfg.Source, "interval", s.cfg.Interval)
}

// Stop halts the ticker, cancels an in-flight scheduled run and waits for it.
func (s *ImportScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.running = false
	s.mu.Unlock()

	s.done.Wait()
	s.log.Info("stopped")
}

func (s *ImportScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow manually triggers an import outside the normal schedule. It fails
// with ErrRunInProgress instead of overlapping a scheduled run.
func (s *ImportScheduler) RunNow(ctx context.Context) (*models.ImportSummary, error) {
	s.log.Info("manual import triggered")
	return s.runOnce(ctx)
}

func (s *ImportScheduler) tick(stopCh <-chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := s.runOnce(ctx); err != nil {
		s.log.Errorw("scheduled import failed", "source", s.cfg.Source, "error", err)
	}
}

func (s *ImportScheduler) runOnce(ctx context.Context) (*models.ImportSummary, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.inFlight.Store(false)

	sum, err := s.runner.Run(ctx, s.cfg.Source)
	if err != nil {
		return sum, fmt.Errorf("import %s: %w", s.cfg.Source, err)
	}
	return sum, nil
}
