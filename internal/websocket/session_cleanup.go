package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultBootstrapTimeout is how long a connection may stay unbootstrapped.
const DefaultBootstrapTimeout = 30 * time.Second

// BootstrapReaper closes connections that never finish bootstrap.
type BootstrapReaper struct {
	hub      *Hub
	timeout  time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

// NewBootstrapReaper creates a reaper for hub. A non-positive timeout uses
// DefaultBootstrapTimeout.
func NewBootstrapReaper(hub *Hub, timeout time.Duration, logger *zap.Logger) *BootstrapReaper {
	if timeout <= 0 {
		timeout = DefaultBootstrapTimeout
	}
	return &BootstrapReaper{
		hub:      hub,
		timeout:  timeout,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background sweep
func (r *BootstrapReaper) Start() {
	// Created before the goroutine so that a mock clock sees the ticker.
	ticker := r.hub.clock.Ticker(r.timeout / 2)
	go r.loop(ticker.C, ticker.Stop)
	r.logger.Info("Bootstrap reaper started", zap.Duration("timeout", r.timeout))
}

// Stop gracefully stops the sweep
func (r *BootstrapReaper) Stop() {
	close(r.stopChan)
	r.logger.Info("Bootstrap reaper stopped")
}

func (r *BootstrapReaper) loop(tick <-chan time.Time, stop func()) {
	defer stop()
	for {
		select {
		case <-r.stopChan:
			return
		case <-tick:
			r.reap()
		}
	}
}

// reap closes every pending connection older than the timeout and returns
// how many it closed.
func (r *BootstrapReaper) reap() int {
	cutoff := r.hub.clock.Now().Add(-r.timeout)
	stale := r.hub.pending(cutoff)
	for _, client := range stale {
		client.logger.Info("Closing connection that never bootstrapped",
			zap.Duration("age", r.hub.clock.Since(client.connectedAt)))
		client.closeWith(websocket.CloseNormalClosure, "bootstrap timeout")
	}
	return len(stale)
}
