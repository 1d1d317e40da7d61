package connectivity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	defaultProbeInterval = 15 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// Listener is invoked on every online/offline transition.
type Listener func(online bool)

// Monitor probes a health endpoint and reports connectivity transitions.
// It starts optimistic: consumers see online until a probe says otherwise.
type Monitor struct {
	client   *resty.Client
	probeURL string
	interval time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	online    bool
	listeners []Listener
}

func NewMonitor(probeURL string, interval time.Duration, logger *zap.Logger) (*Monitor, error) {
	if strings.TrimSpace(probeURL) == "" {
		return nil, fmt.Errorf("probe url is required")
	}
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetTimeout(defaultProbeTimeout).
		SetRetryCount(0)

	return &Monitor{
		client:   client,
		probeURL: probeURL,
		interval: interval,
		logger:   logger,
		online:   true,
	}, nil
}

// IsOnline reports the last observed state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a transition listener. Listeners run on the probe
// goroutine and must not block.
func (m *Monitor) Subscribe(listener Listener) {
	if listener == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, listener)
	m.mu.Unlock()
}

// Run probes until ctx is cancelled. The first probe fires immediately.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	resp, err := m.client.R().SetContext(ctx).Get(m.probeURL)
	online := err == nil && resp.StatusCode() < 500

	m.mu.Lock()
	changed := online != m.online
	m.online = online
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	if !changed {
		return
	}

	if online {
		m.logger.Info("connectivity restored")
	} else {
		m.logger.Warn("connectivity lost", zap.Error(err))
	}
	for _, listener := range listeners {
		listener(online)
	}
}
