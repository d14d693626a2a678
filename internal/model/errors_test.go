package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	kinds := []error{ErrValidation, ErrNotFound, ErrStateConflict, ErrInsufficient}
	cases := map[error]error{
		ErrMissingField:         ErrValidation,
		ErrInvalidBucket:        ErrValidation,
		ErrUnknownInstrument:    ErrNotFound,
		ErrNotMember:            ErrNotFound,
		ErrInvalidCredentials:   ErrNotFound,
		ErrDuplicatePhone:       ErrStateConflict,
		ErrSessionNotActive:     ErrStateConflict,
		ErrInsufficientFunds:    ErrInsufficient,
		ErrInsufficientPosition: ErrInsufficient,
	}
	for err, want := range cases {
		for _, kind := range kinds {
			assert.Equal(t, kind == want, errors.Is(err, kind), "errors.Is(%q, %q)", err, kind)
		}
	}
}

func TestSellWithoutPosition_IsInsufficient(t *testing.T) {
	err := fmt.Errorf("group G1: %w", ErrInsufficientPosition)
	assert.ErrorIs(t, err, ErrInsufficientPosition)
	assert.ErrorIs(t, err, ErrInsufficient)
	assert.NotErrorIs(t, err, ErrStateConflict)
}
