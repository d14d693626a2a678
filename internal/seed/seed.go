// Package seed loads the start-up payload of users and sessions into a store.
package seed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"

	"github.com/papertrade/session-engine/internal/store"
)

// User is one entry of the users list.
type User struct {
	ID       string `json:"id"`
	Phone    string `json:"phone"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Group is one entry of the groups list.
type Group struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	CreatorID    string          `json:"creator_id"`
	StockList    []string        `json:"stock_list"`
	PerUserCoins decimal.Decimal `json:"per_user_coins"`
	Duration     int             `json:"duration"`
	Joinies      []string        `json:"joinies"`
}

// Payload is the initial state document.
type Payload struct {
	Users  []User  `json:"users"`
	Groups []Group `json:"groups"`
}

// Decode reads a JSON payload.
func Decode(r io.Reader) (Payload, error) {
	var p Payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return Payload{}, fmt.Errorf("decode seed: %w", err)
	}
	return p, nil
}

// ReadFile reads a payload from path. A missing file yields an empty payload
// and found == false.
func ReadFile(path string) (p Payload, found bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Payload{}, false, nil
	}
	if err != nil {
		return Payload{}, false, fmt.Errorf("open seed %s: %w", path, err)
	}
	defer f.Close()

	p, err = Decode(f)
	if err != nil {
		return Payload{}, true, err
	}
	return p, true, nil
}

// Apply registers every user, then creates every group and joins its
// joinies, in payload order. It stops at the first failure.
func Apply(st *store.Store, p Payload) error {
	for _, u := range p.Users {
		if err := st.RegisterUser(u.ID, u.Phone, u.Name, u.Password); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	for _, g := range p.Groups {
		_, err := st.CreateSession(store.NewSession{
			ID:           g.ID,
			Name:         g.Name,
			CreatorID:    g.CreatorID,
			Symbols:      g.StockList,
			PerUserCoins: g.PerUserCoins,
			Duration:     g.Duration,
		})
		if err != nil {
			return fmt.Errorf("seed group %s: %w", g.ID, err)
		}
		for _, uid := range g.Joinies {
			if _, err := st.JoinSession(g.ID, uid); err != nil {
				return fmt.Errorf("seed group %s join %s: %w", g.ID, uid, err)
			}
		}
	}
	return nil
}
