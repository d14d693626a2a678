// Package clock runs one market clock per started session. Each clock
// advances its session's tick pointer once per interval, publishes the
// consumed prices to the session topic and finishes the session when the
// duration is exhausted or the clock is stopped.
package clock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/papertrade/session-engine/internal/archive"
	"github.com/papertrade/session-engine/internal/broadcast"
	"github.com/papertrade/session-engine/internal/metrics"
	"github.com/papertrade/session-engine/internal/model"
)

// SessionStore is the part of the store a clock drives.
type SessionStore interface {
	StartSession(sessionID string) (int, error)
	AdvanceTick(sessionID string) (model.Tick, error)
	EndSession(sessionID string) error
	Snapshot(sessionID string) (model.Session, error)
	Leaderboard(sessionID string) ([]model.LeaderboardEntry, error)
}

// Config tunes a Runner.
type Config struct {
	Interval       time.Duration // time between ticks
	PublishTimeout time.Duration // upper bound on one publish
	ArchiveTimeout time.Duration // upper bound on archiving a finished session
}

// Runner owns the clocks of every started session.
type Runner struct {
	store SessionStore
	pub   broadcast.Publisher
	rec   archive.Recorder
	cfg   Config
	log   *slog.Logger

	base    context.Context
	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner creates a runner. Cancelling ctx stops every clock; each stopped
// clock still finishes its session.
func NewRunner(ctx context.Context, st SessionStore, pub broadcast.Publisher, rec archive.Recorder, cfg Config, logger *slog.Logger) *Runner {
	if pub == nil {
		pub = broadcast.Nop{}
	}
	if rec == nil {
		rec = archive.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 500 * time.Millisecond
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = 10 * time.Second
	}
	return &Runner{
		store:   st,
		pub:     pub,
		rec:     rec,
		cfg:     cfg,
		log:     logger,
		base:    ctx,
		running: make(map[string]context.CancelFunc),
	}
}

// Begin starts the session and spawns its clock. Starting a session that is
// not CREATED fails and spawns nothing.
func (r *Runner) Begin(sessionID string) error {
	duration, err := r.store.StartSession(sessionID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(r.base)
	r.mu.Lock()
	r.running[sessionID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	metrics.ActiveSessions.Inc()
	go r.run(ctx, sessionID, duration)

	r.log.Info("session started", "group", sessionID, "duration", duration, "interval", r.cfg.Interval.String())
	return nil
}

// Stop cancels a running clock. It reports whether one was running.
func (r *Runner) Stop(sessionID string) bool {
	r.mu.Lock()
	cancel, ok := r.running[sessionID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Running reports whether the session's clock is still ticking.
func (r *Runner) Running(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[sessionID]
	return ok
}

// Wait blocks until every clock has exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, sessionID string, duration int) {
	defer r.wg.Done()
	defer metrics.ActiveSessions.Dec()
	defer r.finish(ctx, sessionID)

	timer := time.NewTimer(r.cfg.Interval)
	defer timer.Stop()

	for i := 0; i < duration; i++ {
		r.step(ctx, sessionID, i)
		if i == duration-1 {
			return
		}
		timer.Reset(r.cfg.Interval)
		select {
		case <-ctx.Done():
			r.log.Info("session clock stopped", "group", sessionID, "tick", i+1)
			return
		case <-timer.C:
		}
	}
}

// step runs one iteration. Failures, panics included, are logged and
// absorbed so the clock always reaches its last iteration.
func (r *Runner) step(ctx context.Context, sessionID string, i int) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			metrics.TickFailures.WithLabelValues("panic").Inc()
			r.log.Error("exception while market update", "group", sessionID, "tick", i, "err", fmt.Sprint(p))
		}
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	tick, err := r.store.AdvanceTick(sessionID)
	if err != nil {
		metrics.TickFailures.WithLabelValues("advance").Inc()
		r.log.Error("exception while market update", "group", sessionID, "tick", i, "err", err)
		return
	}
	metrics.TicksTotal.Inc()

	payload := make(map[string]float64, len(tick.Prices))
	for sym, p := range tick.Prices {
		payload[sym] = p.InexactFloat64()
	}
	r.log.Debug("market data", "group", sessionID, "tick", tick.Index, "prices", payload)

	pctx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
	defer cancel()
	if err := r.pub.Publish(pctx, broadcast.Topic(sessionID), payload); err != nil {
		metrics.TickFailures.WithLabelValues("publish").Inc()
		r.log.Warn("market update publish failed", "group", sessionID, "tick", tick.Index, "err", err)
	}
}

// finish ends the session, forgets the clock and archives the result.
func (r *Runner) finish(ctx context.Context, sessionID string) {
	if err := r.store.EndSession(sessionID); err != nil {
		r.log.Error("end session failed", "group", sessionID, "err", err)
	}
	r.mu.Lock()
	if cancel, ok := r.running[sessionID]; ok {
		cancel()
		delete(r.running, sessionID)
	}
	r.mu.Unlock()

	sess, err := r.store.Snapshot(sessionID)
	if err != nil {
		r.log.Error("snapshot finished session failed", "group", sessionID, "err", err)
		return
	}
	board, err := r.store.Leaderboard(sessionID)
	if err != nil {
		r.log.Error("leaderboard of finished session failed", "group", sessionID, "err", err)
		return
	}
	r.log.Info("session finished", "group", sessionID, "ticks", sess.ActiveDuration, "participants", len(board))

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ArchiveTimeout)
	defer cancel()
	if err := r.rec.Record(actx, sess, board); err != nil {
		metrics.ArchivedSessions.WithLabelValues("error").Inc()
		r.log.Error("archive session failed", "group", sessionID, "err", err)
		return
	}
	metrics.ArchivedSessions.WithLabelValues("ok").Inc()
}
