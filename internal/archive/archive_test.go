package archive

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/papertrade/session-engine/internal/model"
)

func fixture() (model.Session, []model.LeaderboardEntry) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := model.NewAccount("UI1", decimal.NewFromInt(900))
	a.Trades = append(a.Trades, model.Trade{ID: "t1", UserID: "UI1", Symbol: "ACME", Quantity: 1, Price: decimal.RequireFromString("100.123456"), Direction: model.Buy, Timestamp: at})
	b := model.NewAccount("UI2", decimal.NewFromInt(1000))
	sess := model.Session{
		ID:       "G1",
		Members:  []string{"UI1", "UI2"},
		Accounts: map[string]model.Account{"UI1": *a, "UI2": *b},
	}
	board := []model.LeaderboardEntry{
		{UserID: "UI2", UserName: "bob", MTM: decimal.NewFromInt(5)},
		{UserID: "UI1", UserName: "alice", MTM: decimal.NewFromInt(-3)},
	}
	return sess, board
}

func numericEqual(v any, want string) bool {
	n, ok := v.(pgtype.Numeric)
	if !ok || !n.Valid {
		return false
	}
	got := decimal.NewFromBigInt(n.Int, n.Exp)
	return got.Equal(decimal.RequireFromString(want))
}

func TestNumeric(t *testing.T) {
	for _, s := range []string{"0", "100.123456", "-0.000001", "123456789012345.5"} {
		if !numericEqual(Numeric(decimal.RequireFromString(s)), s) {
			t.Errorf("Numeric(%s) lost precision", s)
		}
	}
}

func TestResultRows(t *testing.T) {
	sess, board := fixture()
	rows := ResultRows(sess, board)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][1] != 1 || rows[0][2] != "UI2" || rows[0][4] != "5" || rows[0][5] != "1000" {
		t.Errorf("unexpected first row %v", rows[0])
	}
	if rows[1][1] != 2 || rows[1][4] != "-3" {
		t.Errorf("unexpected second row %v", rows[1])
	}
}

func TestTradeRows(t *testing.T) {
	sess, _ := fixture()
	rows := TradeRows(sess)
	if len(rows) != 1 {
		t.Fatalf("expected 1 trade row, got %d", len(rows))
	}
	if rows[0][0] != "t1" || rows[0][4] != "BUY" || !numericEqual(rows[0][6], "100.123456") {
		t.Errorf("unexpected trade row %v", rows[0])
	}
}

func TestNop(t *testing.T) {
	sess, board := fixture()
	if err := (Nop{}).Record(context.Background(), sess, board); err != nil {
		t.Errorf("nop recorder failed: %v", err)
	}
}
