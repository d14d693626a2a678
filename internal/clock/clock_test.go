package clock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/papertrade/session-engine/internal/broadcast"
	"github.com/papertrade/session-engine/internal/model"
	"github.com/papertrade/session-engine/internal/pricegen"
	"github.com/papertrade/session-engine/internal/store"
)

type recordingPublisher struct {
	mu      sync.Mutex
	topics  []string
	updates []map[string]float64
	err     error
	panicAt int
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.updates = append(p.updates, payload.(map[string]float64))
	if p.panicAt > 0 && len(p.updates) == p.panicAt {
		panic("publisher exploded")
	}
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates)
}

type recordingRecorder struct {
	mu       sync.Mutex
	sessions []model.Session
	boards   [][]model.LeaderboardEntry
}

func (r *recordingRecorder) Record(_ context.Context, sess model.Session, board []model.LeaderboardEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, sess)
	r.boards = append(r.boards, board)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession(t *testing.T, duration int) *store.Store {
	t.Helper()
	st := store.New(
		store.WithGenerator(pricegen.NewSeeded(7)),
		store.WithBcryptCost(bcrypt.MinCost),
	)
	require.NoError(t, st.RegisterUser("UI1", "1", "alice", "pw"))
	_, err := st.CreateSession(store.NewSession{
		ID:           "GI1",
		Name:         "clock",
		CreatorID:    "UI1",
		Symbols:      []string{"AAPL", "MSFT"},
		PerUserCoins: decimal.NewFromInt(1000),
		Duration:     duration,
	})
	require.NoError(t, err)
	return st
}

func newRunner(ctx context.Context, st SessionStore, pub broadcast.Publisher, rec *recordingRecorder) *Runner {
	return NewRunner(ctx, st, pub, rec, Config{Interval: time.Millisecond}, quietLogger())
}

func TestRunner_RunsToCompletion(t *testing.T) {
	st := newSession(t, 5)
	pub := &recordingPublisher{}
	rec := &recordingRecorder{}
	r := newRunner(context.Background(), st, pub, rec)

	require.NoError(t, r.Begin("GI1"))
	r.Wait()

	state, err := st.State("GI1")
	require.NoError(t, err)
	assert.Equal(t, model.StateFinished, state)

	ptr, err := st.TickPointer("GI1")
	require.NoError(t, err)
	assert.Equal(t, 5, ptr)

	require.Equal(t, 5, pub.count())
	for i, topic := range pub.topics {
		assert.Equal(t, "session:GI1:market", topic, "update %d", i)
		assert.Len(t, pub.updates[i], 2)
	}
	assert.False(t, r.Running("GI1"))

	require.Len(t, rec.sessions, 1)
	assert.Equal(t, model.StateFinished, rec.sessions[0].State)
	require.Len(t, rec.boards[0], 1)
	assert.Equal(t, "UI1", rec.boards[0][0].UserID)
}

func TestRunner_PublishedPricesMatchConsumedTicks(t *testing.T) {
	st := newSession(t, 3)
	pub := &recordingPublisher{}
	r := newRunner(context.Background(), st, pub, &recordingRecorder{})

	require.NoError(t, r.Begin("GI1"))
	r.Wait()

	// Update i carries the prices at tick i; one-tick candles expose them.
	candles, err := st.Candles("GI1", "AAPL", time.Second)
	require.NoError(t, err)
	require.Len(t, candles, 4)
	require.Equal(t, 3, pub.count())
	for i := 0; i < 3; i++ {
		assert.InDelta(t, candles[i].Close.InexactFloat64(), pub.updates[i]["AAPL"], 1e-9, "tick %d", i)
	}
}

func TestRunner_BeginTwiceFails(t *testing.T) {
	st := newSession(t, 50)
	r := newRunner(context.Background(), st, broadcast.Nop{}, &recordingRecorder{})

	require.NoError(t, r.Begin("GI1"))
	err := r.Begin("GI1")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	r.Stop("GI1")
	r.Wait()
}

func TestRunner_BeginUnknownSession(t *testing.T) {
	st := newSession(t, 2)
	r := newRunner(context.Background(), st, broadcast.Nop{}, &recordingRecorder{})

	err := r.Begin("GI404")
	assert.ErrorIs(t, err, model.ErrUnknownSession)
	assert.False(t, r.Running("GI404"))
}

func TestRunner_PublishFailuresDoNotStopClock(t *testing.T) {
	st := newSession(t, 4)
	pub := &recordingPublisher{err: errors.New("broker down")}
	r := newRunner(context.Background(), st, pub, &recordingRecorder{})

	require.NoError(t, r.Begin("GI1"))
	r.Wait()

	ptr, err := st.TickPointer("GI1")
	require.NoError(t, err)
	assert.Equal(t, 4, ptr)
	assert.Equal(t, 4, pub.count())
}

func TestRunner_PanicIsAbsorbed(t *testing.T) {
	st := newSession(t, 4)
	pub := &recordingPublisher{panicAt: 2}
	r := newRunner(context.Background(), st, pub, &recordingRecorder{})

	require.NoError(t, r.Begin("GI1"))
	r.Wait()

	state, _ := st.State("GI1")
	assert.Equal(t, model.StateFinished, state)
	assert.Equal(t, 4, pub.count())
}

func TestRunner_StopFinishesSession(t *testing.T) {
	st := newSession(t, 10_000)
	rec := &recordingRecorder{}
	r := NewRunner(context.Background(), st, broadcast.Nop{}, rec, Config{Interval: 5 * time.Millisecond}, quietLogger())

	require.NoError(t, r.Begin("GI1"))
	assert.True(t, r.Running("GI1"))
	assert.True(t, r.Stop("GI1"))
	r.Wait()

	state, _ := st.State("GI1")
	assert.Equal(t, model.StateFinished, state)
	ptr, _ := st.TickPointer("GI1")
	assert.Less(t, ptr, 10_000)
	assert.False(t, r.Stop("GI1"))
	assert.Len(t, rec.sessions, 1)
}

func TestRunner_ContextCancelStopsAll(t *testing.T) {
	st := newSession(t, 10_000)
	require.NoError(t, st.RegisterUser("UI2", "2", "bob", "pw"))
	_, err := st.CreateSession(store.NewSession{
		ID:           "GI2",
		CreatorID:    "UI2",
		Symbols:      []string{"TSLA"},
		PerUserCoins: decimal.NewFromInt(10),
		Duration:     10_000,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(ctx, st, broadcast.Nop{}, &recordingRecorder{}, Config{Interval: 5 * time.Millisecond}, quietLogger())
	require.NoError(t, r.Begin("GI1"))
	require.NoError(t, r.Begin("GI2"))

	cancel()
	r.Wait()

	for _, id := range []string{"GI1", "GI2"} {
		state, _ := st.State(id)
		assert.Equal(t, model.StateFinished, state, id)
	}
}

func TestRunner_TradingDuringClock(t *testing.T) {
	st := newSession(t, 200)
	r := NewRunner(context.Background(), st, broadcast.Nop{}, &recordingRecorder{}, Config{Interval: time.Millisecond}, quietLogger())
	require.NoError(t, r.Begin("GI1"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _ = st.PlaceOrder(store.Order{SessionID: "GI1", UserID: "UI1", Symbol: "AAPL", Quantity: 1, Direction: model.Buy})
				_, _ = st.PlaceOrder(store.Order{SessionID: "GI1", UserID: "UI1", Symbol: "AAPL", Quantity: 1, Direction: model.Sell})
			}
		}()
	}
	wg.Wait()
	r.Stop("GI1")
	r.Wait()

	acct, err := st.Account("GI1", "UI1")
	require.NoError(t, err)
	assert.False(t, acct.AvailableCoins.IsNegative())
	for _, op := range acct.OpenPositions {
		assert.Positive(t, op.Quantity)
	}
}
