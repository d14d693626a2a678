package seed_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/papertrade/session-engine/internal/model"
	"github.com/papertrade/session-engine/internal/seed"
	"github.com/papertrade/session-engine/internal/store"
)

const payload = `{
  "users": [
    {"id": "UI1", "phone": "1", "name": "alice", "password": "x"},
    {"id": "UI2", "phone": "2", "name": "bob", "password": "y"},
    {"id": "UI3", "phone": "3", "name": "carol", "password": "z"}
  ],
  "groups": [
    {"id": "GI1", "name": "friday", "creator_id": "UI1", "stock_list": ["ACME", "INFY"],
     "per_user_coins": 1000, "duration": 60, "joinies": ["UI2", "UI3", "UI1"]}
  ]
}`

func TestDecodeAndApply(t *testing.T) {
	p, err := seed.Decode(strings.NewReader(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	st := store.New(store.WithBcryptCost(bcrypt.MinCost))
	if err := seed.Apply(st, p); err != nil {
		t.Fatalf("apply: %v", err)
	}

	sess, err := st.Snapshot("GI1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if got := strings.Join(sess.Members, ","); got != "UI1,UI2,UI3" {
		t.Errorf("expected members UI1,UI2,UI3, got %s", got)
	}
	if sess.Duration != 60 || sess.State != model.StateCreated {
		t.Errorf("unexpected session %+v", sess)
	}
	if !sess.Accounts["UI3"].AvailableCoins.Equal(sess.PerUserCoins) {
		t.Errorf("joinee not funded: %s", sess.Accounts["UI3"].AvailableCoins)
	}
	if _, err := st.Authenticate("2", "y"); err != nil {
		t.Errorf("seeded user cannot log in: %v", err)
	}
}

func TestApply_UnknownCreator(t *testing.T) {
	p := seed.Payload{Groups: []seed.Group{{ID: "GI1", CreatorID: "ghost", StockList: []string{"ACME"}, PerUserCoins: decimal.NewFromInt(100), Duration: 5}}}
	err := seed.Apply(store.New(), p)
	if !errors.Is(err, model.ErrUnknownCreator) {
		t.Errorf("expected ErrUnknownCreator, got %v", err)
	}
}

func TestReadFile_Missing(t *testing.T) {
	p, found, err := seed.ReadFile(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil || found {
		t.Fatalf("expected silent miss, got found=%v err=%v", found, err)
	}
	if len(p.Users) != 0 {
		t.Errorf("expected empty payload")
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "initData.json")
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatal(err)
	}
	p, found, err := seed.ReadFile(path)
	if err != nil || !found {
		t.Fatalf("read: found=%v err=%v", found, err)
	}
	if len(p.Users) != 3 || len(p.Groups) != 1 {
		t.Errorf("unexpected payload %+v", p)
	}
}
