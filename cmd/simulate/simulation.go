package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/papertrade/session-engine/internal/archive"
	"github.com/papertrade/session-engine/internal/broadcast"
	"github.com/papertrade/session-engine/internal/clock"
	"github.com/papertrade/session-engine/internal/model"
	"github.com/papertrade/session-engine/internal/pricegen"
	"github.com/papertrade/session-engine/internal/seed"
	"github.com/papertrade/session-engine/internal/store"
)

type simulation struct {
	store *store.Store
	seed  int64
}

type result struct {
	Group model.Session
	Board []model.LeaderboardEntry
}

func newSimulation(path string, seedVal int64) (*simulation, error) {
	payload, found, err := seed.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("initial data %s not found", path)
	}

	if seedVal == 0 {
		seedVal = time.Now().UnixNano()
	}
	// Passwords are never checked in a simulation.
	st := store.New(
		store.WithGenerator(pricegen.NewSeeded(seedVal)),
		store.WithBcryptCost(bcrypt.MinCost),
	)
	if err := seed.Apply(st, payload); err != nil {
		return nil, err
	}
	return &simulation{store: st, seed: seedVal}, nil
}

// selectGroups returns the requested group ids, or every CREATED group.
// Requested groups must all exist and still be CREATED.
func (s *simulation) selectGroups(only []string) ([]string, error) {
	if len(only) > 0 {
		for _, id := range only {
			state, err := s.store.State(id)
			if err != nil {
				return nil, err
			}
			if state != model.StateCreated {
				return nil, fmt.Errorf("group %s is %s: %w", id, state, model.ErrInvalidTransition)
			}
		}
		return only, nil
	}
	var ids []string
	for _, g := range s.store.Sessions() {
		if g.State == model.StateCreated {
			ids = append(ids, g.ID)
		}
	}
	return ids, nil
}

func (s *simulation) run(ctx context.Context, ids []string, interval time.Duration, traders bool) ([]result, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}
	runner := clock.NewRunner(ctx, s.store, broadcast.Nop{}, archive.Nop{}, clock.Config{Interval: interval}, slog.Default())
	for i, id := range ids {
		if err := runner.Begin(id); err != nil {
			for _, started := range ids[:i] {
				runner.Stop(started)
			}
			runner.Wait()
			return nil, fmt.Errorf("begin %s: %w", id, err)
		}
	}

	tctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if traders {
		for i, id := range ids {
			wg.Add(1)
			go func(id string, rng *rand.Rand) {
				defer wg.Done()
				s.trade(tctx, runner, id, rng, interval)
			}(id, rand.New(rand.NewSource(s.seed+int64(i))))
		}
	}

	runner.Wait()
	cancel()
	wg.Wait()

	out := make([]result, 0, len(ids))
	for _, id := range ids {
		sess, err := s.store.Snapshot(id)
		if err != nil {
			return nil, err
		}
		board, err := s.store.Leaderboard(id)
		if err != nil {
			return nil, err
		}
		out = append(out, result{Group: sess, Board: board})
	}
	return out, nil
}

// trade places one random order per tick until the group's clock stops.
// Rejections are expected and only logged.
func (s *simulation) trade(ctx context.Context, runner *clock.Runner, id string, rng *rand.Rand, interval time.Duration) {
	sess, err := s.store.Snapshot(id)
	if err != nil || len(sess.Members) == 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !runner.Running(id) {
			return
		}

		o := store.Order{
			SessionID: id,
			UserID:    sess.Members[rng.Intn(len(sess.Members))],
			Symbol:    sess.Symbols[rng.Intn(len(sess.Symbols))],
			Quantity:  1 + rng.Int63n(10),
			Direction: model.Buy,
		}
		if rng.Intn(2) == 0 {
			o.Direction = model.Sell
		}
		exec, err := s.store.PlaceOrder(o)
		if err != nil {
			slog.Debug("order rejected", "group", id, "user", o.UserID, "stock", o.Symbol, "err", err)
			continue
		}
		slog.Debug("trade executed", "group", id, "user", o.UserID, "stock", o.Symbol,
			"direction", string(o.Direction), "qty", o.Quantity, "price", exec.Trade.Price.String())
	}
}
