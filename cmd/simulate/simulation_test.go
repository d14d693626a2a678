package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrade/session-engine/internal/config"
	"github.com/papertrade/session-engine/internal/model"
)

const seedJSON = `{
  "users": [
    {"id": "UI1", "phone": "1", "name": "alice", "password": "a"},
    {"id": "UI2", "phone": "2", "name": "bob", "password": "b"}
  ],
  "groups": [
    {"id": "GI1", "name": "first", "creator_id": "UI1", "stock_list": ["AAPL", "MSFT"],
     "per_user_coins": 10000, "duration": 20, "joinies": ["UI2"]},
    {"id": "GI2", "name": "second", "creator_id": "UI2", "stock_list": ["TSLA"],
     "per_user_coins": "500", "duration": 5, "joinies": []}
  ]
}`

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "initData.json")
	require.NoError(t, os.WriteFile(path, []byte(seedJSON), 0o600))
	return path
}

func TestSimulation_RunsAllGroups(t *testing.T) {
	sim, err := newSimulation(writeSeed(t), 99)
	require.NoError(t, err)

	ids, err := sim.selectGroups(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"GI1", "GI2"}, ids)

	res, err := sim.run(context.Background(), ids, time.Millisecond, true)
	require.NoError(t, err)
	require.Len(t, res, 2)

	for _, r := range res {
		assert.Equal(t, model.StateFinished, r.Group.State, r.Group.ID)
		assert.Equal(t, r.Group.Duration, r.Group.ActiveDuration, r.Group.ID)
		assert.Len(t, r.Board, len(r.Group.Members))
		for i := 1; i < len(r.Board); i++ {
			assert.False(t, r.Board[i].MTM.GreaterThan(r.Board[i-1].MTM), "leaderboard must be sorted")
		}
		for _, acct := range r.Group.Accounts {
			assert.False(t, acct.AvailableCoins.IsNegative())
		}
	}
}

func TestSimulation_SelectUnknownGroup(t *testing.T) {
	sim, err := newSimulation(writeSeed(t), 1)
	require.NoError(t, err)

	_, err = sim.selectGroups([]string{"GI9"})
	assert.ErrorIs(t, err, model.ErrUnknownSession)
}

func TestSimulation_SelectStartedGroup(t *testing.T) {
	sim, err := newSimulation(writeSeed(t), 1)
	require.NoError(t, err)
	_, err = sim.store.StartSession("GI2")
	require.NoError(t, err)

	_, err = sim.selectGroups([]string{"GI1", "GI2"})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	state, err := sim.store.State("GI1")
	require.NoError(t, err)
	assert.Equal(t, model.StateCreated, state, "no clock may start when a group is rejected")
}

func TestSimulation_BeginFailureStopsStartedClocks(t *testing.T) {
	sim, err := newSimulation(writeSeed(t), 1)
	require.NoError(t, err)
	_, err = sim.store.StartSession("GI2")
	require.NoError(t, err)

	_, err = sim.run(context.Background(), []string{"GI1", "GI2"}, time.Hour, true)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	// GI1's clock was started, then stopped; stopping finishes the group.
	state, err := sim.store.State("GI1")
	require.NoError(t, err)
	assert.Equal(t, model.StateFinished, state)
}

func TestSimulation_RejectsNonPositiveInterval(t *testing.T) {
	sim, err := newSimulation(writeSeed(t), 1)
	require.NoError(t, err)

	for _, interval := range []time.Duration{0, -time.Second} {
		assert.NotPanics(t, func() {
			_, err := sim.run(context.Background(), []string{"GI2"}, interval, true)
			assert.Error(t, err)
		})
	}
	state, err := sim.store.State("GI2")
	require.NoError(t, err)
	assert.Equal(t, model.StateCreated, state)
}

func TestRunCmd_RejectsNonPositiveInterval(t *testing.T) {
	cfg := config.SimulateConfig{InitDataPath: writeSeed(t), TickInterval: time.Millisecond}
	cmd := newRunCmd(&cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--interval", "0s"})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--interval must be positive")
}

func TestSimulation_MissingFile(t *testing.T) {
	_, err := newSimulation(filepath.Join(t.TempDir(), "nope.json"), 1)
	assert.Error(t, err)
}

func TestPrintLeaderboard(t *testing.T) {
	sim, err := newSimulation(writeSeed(t), 3)
	require.NoError(t, err)
	res, err := sim.run(context.Background(), []string{"GI2"}, time.Millisecond, false)
	require.NoError(t, err)

	var buf bytes.Buffer
	printLeaderboard(&buf, res[0])
	out := buf.String()
	assert.Contains(t, out, "second (GI2) FINISHED after 5/5 ticks")
	assert.Contains(t, out, "bob")
	assert.Equal(t, 4, strings.Count(out, "\n"))
}
