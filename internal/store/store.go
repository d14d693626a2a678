// Package store is the authoritative in-memory registry of users, trading
// sessions and per-session accounts.
//
// Every operation, reads included, runs under one store-wide sync.RWMutex.
// Mutations take the write lock for their full duration, so no reader ever
// observes a partially applied trade or tick. Exported methods acquire the
// lock; unexported helpers expect it to be held and never re-acquire it.
// Values returned to callers are copies.
package store

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/papertrade/session-engine/internal/model"
	"github.com/papertrade/session-engine/internal/pricegen"
)

// PriceScale is the number of decimal places generated prices are rounded to.
const PriceScale int32 = 6

// Store implements the session registry.
type Store struct {
	mu sync.RWMutex

	users     map[string]*model.User
	userOrder []string
	phones    map[string]string // phone -> user id

	sessions     map[string]*session
	sessionOrder []string

	gen        *pricegen.Generator
	now        func() time.Time
	tickUnit   time.Duration
	bcryptCost int
}

// Option configures a Store.
type Option func(*Store)

// WithGenerator sets the price path generator.
func WithGenerator(g *pricegen.Generator) Option {
	return func(s *Store) { s.gen = g }
}

// WithClock overrides the wall clock used for trade and lifecycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTickUnit sets the wall-clock length of one tick, used to timestamp
// realized prices when building candles.
func WithTickUnit(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.tickUnit = d
		}
	}
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Store) { s.bcryptCost = cost }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		users:      make(map[string]*model.User),
		phones:     make(map[string]string),
		sessions:   make(map[string]*session),
		now:        func() time.Time { return time.Now().UTC() },
		tickUnit:   time.Second,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gen == nil {
		s.gen = pricegen.New(nil)
	}
	return s
}

// TickUnit returns the wall-clock length of one tick.
func (s *Store) TickUnit() time.Duration { return s.tickUnit }

// --- Users ---

// RegisterUser adds a user. The password is stored as a bcrypt hash.
func (s *Store) RegisterUser(id, phone, name, password string) error {
	phone = strings.TrimSpace(phone)
	if id == "" || phone == "" || name == "" || password == "" {
		return model.ErrMissingField
	}

	// Hash before taking the lock; bcrypt is deliberately slow.
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.phones[phone]; ok {
		return model.ErrDuplicatePhone
	}
	if _, ok := s.users[id]; ok {
		return fmt.Errorf("user %s: %w", id, model.ErrDuplicateID)
	}
	s.users[id] = &model.User{ID: id, Phone: phone, Name: name, PasswordHash: hash}
	s.userOrder = append(s.userOrder, id)
	s.phones[phone] = id
	return nil
}

// Authenticate returns the id of the user owning phone if password matches.
func (s *Store) Authenticate(phone, password string) (string, error) {
	s.mu.RLock()
	id, ok := s.phones[strings.TrimSpace(phone)]
	var hash []byte
	if ok {
		hash = s.users[id].PasswordHash
	}
	s.mu.RUnlock()

	if !ok {
		return "", model.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return "", model.ErrInvalidCredentials
	}
	return id, nil
}

// User returns the user with id.
func (s *Store) User(id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", id, model.ErrUnknownUser)
	}
	return *u, nil
}

// UserByPhone returns the user registered with phone.
func (s *Store) UserByPhone(phone string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.phones[strings.TrimSpace(phone)]
	if !ok {
		return model.User{}, fmt.Errorf("phone %s: %w", phone, model.ErrUnknownUser)
	}
	return *s.users[id], nil
}
