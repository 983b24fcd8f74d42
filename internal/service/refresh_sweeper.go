package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RefreshSweeper proactively refreshes tokens approaching expiry so reads
// rarely pay for a synchronous provider round trip. It funnels every
// candidate through GetValidToken, which re-evaluates the policy and holds
// the per-connection single-flight lock, so the sweeper can never race an
// on-demand refresh into a double provider call.
type RefreshSweeper struct {
	connections    *ConnectionService
	connectionRepo ConnectionRepository
	logger         *zap.Logger

	cron      *cron.Cron
	schedule  string
	batchSize int
	lookahead time.Duration
}

// NewRefreshSweeper creates the sweeper. schedule is a standard cron
// expression; lookahead should match the widest refresh threshold in use so
// no provider's window is missed between runs.
func NewRefreshSweeper(connections *ConnectionService, connectionRepo ConnectionRepository, schedule string, lookahead time.Duration, logger *zap.Logger) *RefreshSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if schedule == "" {
		schedule = "*/30 * * * *"
	}
	if lookahead <= 0 {
		lookahead = DefaultRefreshThreshold
	}
	return &RefreshSweeper{
		connections:    connections,
		connectionRepo: connectionRepo,
		logger:         logger,
		cron:           cron.New(),
		schedule:       schedule,
		batchSize:      200,
		lookahead:      lookahead,
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *RefreshSweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		s.Sweep(ctx)
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("refresh sweeper started",
		zap.String("schedule", s.schedule),
		zap.Duration("lookahead", s.lookahead))
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *RefreshSweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("refresh sweeper stopped")
}

// SweepStats summarizes one sweep pass.
type SweepStats struct {
	Due       int
	Refreshed int
	Failed    int
	Skipped   int
}

// Sweep runs one pass over connections whose expiry falls inside the
// lookahead window. Failures are per-connection: one dead refresh token must
// not stall the rest of the batch.
func (s *RefreshSweeper) Sweep(ctx context.Context) SweepStats {
	before := time.Now().Add(s.lookahead)
	due, err := s.connectionRepo.ListDueForRefresh(ctx, before, s.batchSize)
	if err != nil {
		s.logger.Error("refresh sweep listing failed", zap.Error(err))
		return SweepStats{}
	}
	if len(due) == 0 {
		return SweepStats{}
	}

	stats := SweepStats{Due: len(due)}
	for i := range due {
		conn := &due[i]
		desc, err := s.connections.registry.Describe(conn.Provider)
		if err != nil || !desc.SupportsRefreshTokens {
			// A non-refreshable token can only be re-authorized by a human;
			// sweeping it would report the same expiry on every pass.
			stats.Skipped++
			continue
		}
		if _, err := s.connections.GetValidToken(ctx, conn.AgencyID, conn.Provider); err != nil {
			stats.Failed++
			s.logger.Warn("proactive refresh failed",
				zap.Int64("agency_id", conn.AgencyID),
				zap.String("provider", conn.Provider),
				zap.Error(err))
			continue
		}
		stats.Refreshed++
	}

	s.logger.Info("refresh sweep completed",
		zap.Int("due", stats.Due),
		zap.Int("ok", stats.Refreshed),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped))
	return stats
}
