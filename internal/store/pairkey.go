package store

import (
	"errors"
	"strings"
)

// PairKeySeparator joins the two sorted IDs of a pair key.
const PairKeySeparator = "_"

// ErrInvalidParticipant is returned for IDs that cannot form a pair key.
var ErrInvalidParticipant = errors.New("invalid participant id")

// ValidateParticipantID rejects IDs that are empty or contain the pair key
// separator. Allowing the separator would let two different pairs collide
// on one key.
func ValidateParticipantID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidParticipant
	}
	if strings.Contains(id, PairKeySeparator) {
		return ErrInvalidParticipant
	}
	return nil
}

// OrderPair returns a and b sorted ascending.
func OrderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// PairKey returns the order-independent key for the pair (a, b).
// PairKey(a, b) == PairKey(b, a) for any a and b.
func PairKey(a, b string) string {
	lo, hi := OrderPair(a, b)
	return lo + PairKeySeparator + hi
}
