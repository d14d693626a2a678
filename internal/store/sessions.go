package store

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/session-engine/internal/ledger"
	"github.com/papertrade/session-engine/internal/model"
	"github.com/papertrade/session-engine/internal/symbol"
)

// session is the store-owned state of one trading competition.
// Accounts and instruments are reachable only through it.
type session struct {
	id           string
	name         string
	creatorID    string
	symbols      []string
	instruments  map[string]*model.Instrument
	perUserCoins decimal.Decimal
	duration     int
	active       int // tick pointer; only grows, never exceeds duration
	state        model.State
	startedAt    time.Time
	endedAt      time.Time
	members      []string // join order
	accounts     map[string]*model.Account
}

// NewSession describes a session to create.
type NewSession struct {
	ID           string
	Name         string
	CreatorID    string
	Symbols      []string
	PerUserCoins decimal.Decimal
	Duration     int
}

// CreateSession registers a new session in state CREATED, generates one price
// path per symbol and joins the creator.
func (s *Store) CreateSession(ns NewSession) (model.Session, error) {
	if ns.ID == "" || ns.CreatorID == "" {
		return model.Session{}, model.ErrMissingField
	}
	symbols, err := symbol.ParseList(ns.Symbols)
	if err != nil {
		return model.Session{}, err
	}
	if ns.Duration <= 0 {
		return model.Session{}, model.ErrInvalidDuration
	}
	if !ns.PerUserCoins.IsPositive() {
		return model.Session{}, model.ErrInvalidCoins
	}

	// Paths are generated outside the lock; they depend only on the inputs.
	instruments := make(map[string]*model.Instrument, len(symbols))
	for _, sym := range symbols {
		instruments[sym] = &model.Instrument{
			Symbol: sym,
			Prices: toDecimals(s.gen.Path(ns.Duration)),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[ns.CreatorID]; !ok {
		return model.Session{}, fmt.Errorf("user %s: %w", ns.CreatorID, model.ErrUnknownCreator)
	}
	if _, ok := s.sessions[ns.ID]; ok {
		return model.Session{}, fmt.Errorf("group %s: %w", ns.ID, model.ErrDuplicateID)
	}

	sess := &session{
		id:           ns.ID,
		name:         ns.Name,
		creatorID:    ns.CreatorID,
		symbols:      symbols,
		instruments:  instruments,
		perUserCoins: ns.PerUserCoins,
		duration:     ns.Duration,
		state:        model.StateCreated,
		accounts:     make(map[string]*model.Account),
	}
	sess.join(ns.CreatorID)
	s.sessions[ns.ID] = sess
	s.sessionOrder = append(s.sessionOrder, ns.ID)
	return sess.snapshot(), nil
}

// JoinSession adds userID to the session. Joining twice is not an error:
// joined is false and the existing account is left untouched.
func (s *Store) JoinSession(sessionID, userID string) (joined bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return false, fmt.Errorf("user %s: %w", userID, model.ErrUnknownUser)
	}
	sess, err := s.session(sessionID)
	if err != nil {
		return false, err
	}
	return sess.join(userID), nil
}

// StartSession moves a CREATED session to STARTED and returns its duration.
func (s *Store) StartSession(sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return 0, err
	}
	if sess.state != model.StateCreated {
		return 0, fmt.Errorf("group %s is %s: %w", sessionID, sess.state, model.ErrInvalidTransition)
	}
	sess.state = model.StateStarted
	sess.startedAt = s.now()
	return sess.duration, nil
}

// AdvanceTick consumes the price at the current tick for every instrument,
// moves the tick pointer forward, revalues every account at the new tick
// and returns the consumed prices. The tick that exhausts the duration also
// finishes the session.
func (s *Store) AdvanceTick(sessionID string) (model.Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return model.Tick{}, err
	}
	if sess.state != model.StateStarted || sess.active >= sess.duration {
		return model.Tick{}, fmt.Errorf("group %s: %w", sessionID, model.ErrSessionNotActive)
	}

	tick := model.Tick{
		SessionID: sessionID,
		Index:     sess.active,
		Prices:    sess.prices(),
	}
	sess.active++

	marks := sess.prices()
	for _, id := range sess.members {
		ledger.Revalue(sess.accounts[id], marks)
	}

	if sess.active == sess.duration {
		sess.finish(s.now())
	}
	return tick, nil
}

// EndSession marks the session FINISHED. Ending a finished session is a no-op.
func (s *Store) EndSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}
	sess.finish(s.now())
	return nil
}

// session looks up a session. Caller holds the lock.
func (s *Store) session(id string) (*session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", id, model.ErrUnknownSession)
	}
	return sess, nil
}

func (sess *session) join(userID string) bool {
	if _, ok := sess.accounts[userID]; ok {
		return false
	}
	sess.accounts[userID] = model.NewAccount(userID, sess.perUserCoins)
	sess.members = append(sess.members, userID)
	return true
}

func (sess *session) finish(at time.Time) {
	if sess.state == model.StateFinished {
		return
	}
	sess.state = model.StateFinished
	sess.endedAt = at
}

// prices returns every instrument's price at the current tick pointer.
func (sess *session) prices() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(sess.instruments))
	for sym, inst := range sess.instruments {
		out[sym] = inst.Prices[sess.active]
	}
	return out
}

func (sess *session) account(userID string) (*model.Account, error) {
	acct, ok := sess.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("user %s in group %s: %w", userID, sess.id, model.ErrNotMember)
	}
	return acct, nil
}

// instrument looks up sym after normalizing it the way CreateSession did.
func (sess *session) instrument(sym string) (*model.Instrument, error) {
	inst, ok := sess.instruments[symbol.Normalize(sym)]
	if !ok {
		return nil, fmt.Errorf("%s in group %s: %w", sym, sess.id, model.ErrUnknownInstrument)
	}
	return inst, nil
}

func (sess *session) snapshot() model.Session {
	out := model.Session{
		ID:             sess.id,
		Name:           sess.name,
		CreatorID:      sess.creatorID,
		Symbols:        append([]string{}, sess.symbols...),
		PerUserCoins:   sess.perUserCoins,
		Duration:       sess.duration,
		ActiveDuration: sess.active,
		State:          sess.state,
		Members:        append([]string{}, sess.members...),
		Accounts:       make(map[string]model.Account, len(sess.accounts)),
	}
	if !sess.startedAt.IsZero() {
		t := sess.startedAt
		out.StartedAt = &t
	}
	if !sess.endedAt.IsZero() {
		t := sess.endedAt
		out.EndedAt = &t
	}
	for id, acct := range sess.accounts {
		out.Accounts[id] = acct.Clone()
	}
	return out
}

func toDecimals(fs []float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(fs))
	for i, f := range fs {
		out[i] = decimal.NewFromFloat(f).Round(PriceScale)
	}
	return out
}
