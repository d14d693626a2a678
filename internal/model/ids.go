package model

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

var idSpace = big.NewInt(10_000_000_000)

// NewUserID returns a fresh user identifier of the form UI<digits>.
func NewUserID() string { return prefixedID("UI") }

// NewSessionID returns a fresh session identifier of the form GI<digits>.
func NewSessionID() string { return prefixedID("GI") }

// NewTradeID returns a fresh trade identifier.
func NewTradeID() string { return uuid.New().String() }

// prefixedID folds the first 48 bits of a random UUID into ten decimal digits.
func prefixedID(prefix string) string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	n, _ := new(big.Int).SetString(hex, 16)
	return fmt.Sprintf("%s%d", prefix, n.Mod(n, idSpace))
}
