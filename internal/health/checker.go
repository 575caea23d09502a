package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status values reported per dependency.
const (
	StatusUnknown  = "unknown"
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	CheckTimeout  time.Duration
	FailThreshold int
}

// Dependency is one backing dependency.
type Dependency struct {
	Name  string
	Check func(ctx context.Context) error
}

// DependencyStatus is the last known state of one dependency.
type DependencyStatus struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Failures  int       `json:"failures"`
	LastError string    `json:"lastError,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// MetricsRecordFunc is an optional callback for recording check results.
type MetricsRecordFunc func(name string, success bool)

// Checker runs periodic dependency checks and tracks degradation.
type Checker struct {
	deps      []Dependency
	mu        sync.Mutex
	statuses  map[string]*DependencyStatus
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a new Checker.
func New(deps []Dependency, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.CheckTimeout == 0 {
		cfg.CheckTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	statuses := make(map[string]*DependencyStatus, len(deps))
	for _, p := range deps {
		statuses[p.Name] = &DependencyStatus{Name: p.Name, Status: StatusUnknown}
	}
	return &Checker{
		deps:     deps,
		statuses: statuses,
		cfg:      cfg,
		logger:   logger,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs the check loop until ctx is cancelled.
func (h *Checker) Start(ctx context.Context) {
	h.CheckAll(ctx)

	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll runs every dependency check concurrently and updates their status.
func (h *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range h.deps {
		wg.Add(1)
		go func(p Dependency) {
			defer wg.Done()
			h.observe(p.Name, h.run(ctx, p))
		}(p)
	}
	wg.Wait()
}

func (h *Checker) run(ctx context.Context, p Dependency) error {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.CheckTimeout)
	defer cancel()
	return p.Check(ctx)
}

func (h *Checker) observe(name string, err error) {
	success := err == nil
	if h.onMetrics != nil {
		h.onMetrics(name, success)
	}

	h.mu.Lock()
	s := h.statuses[name]
	prev := s.Status
	s.CheckedAt = time.Now().UTC()
	if success {
		s.Failures = 0
		s.LastError = ""
		s.Status = StatusHealthy
	} else {
		s.Failures++
		s.LastError = err.Error()
		if s.Failures >= h.cfg.FailThreshold {
			s.Status = StatusDegraded
		}
	}
	next, failures := s.Status, s.Failures
	h.mu.Unlock()

	switch {
	case prev == StatusDegraded && next == StatusHealthy:
		h.logger.Info("health: recovered", zap.String("dependency", name))
	case prev != StatusDegraded && next == StatusDegraded:
		// Transition: healthy → degraded
		h.logger.Warn("health: degraded",
			zap.String("dependency", name),
			zap.Int("fail_count", failures),
			zap.Error(err),
		)
	case !success:
		h.logger.Debug("health: check failed", zap.String("dependency", name), zap.Error(err))
	}
}

// Statuses returns a snapshot of all dependencies sorted by name.
func (h *Checker) Statuses() []DependencyStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]DependencyStatus, 0, len(h.statuses))
	for _, s := range h.statuses {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Ready reports whether no dependency is degraded.
func (h *Checker) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.statuses {
		if s.Status == StatusDegraded {
			return false
		}
	}
	return true
}
