package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/pelorus/orgauth/internal/auth/store"
	"github.com/pelorus/orgauth/pkg/cachex"
)

// HousekeepingService periodically deletes rows that have outlived their
// purpose: expired refresh tokens, blacklist tombstones whose original
// token could no longer be presented anyway, and operation logs past their
// retention deadline. Nothing else in the system deletes audit rows.
type HousekeepingService struct {
	Store    store.Store
	Cache    *cachex.Cache[string, []string]
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates the service. A non-positive interval
// defaults to 1 hour.
func NewHousekeepingService(st store.Store, cache *cachex.Cache[string, []string], logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	return &HousekeepingService{
		Store:    st,
		Cache:    cache,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background worker. Non-blocking; call Stop to shut it
// down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress sweep ends.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep runs each deletion independently so one failure doesn't stop the
// others.
func (s *HousekeepingService) sweep() {
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", err)
	}
	if err := s.Store.Blacklist().DeleteExpiredBlacklistedTokens(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired blacklist tombstones", "error", err)
	}
	if err := s.Store.OperationLogs().DeleteExpiredOperationLogs(ctx, now); err != nil {
		s.Logger.Error("failed to delete operation logs past retention", "error", err)
	}
	if s.Cache != nil {
		s.Cache.Purge()
	}

	s.Logger.Debug("housekeeping sweep completed")
}
