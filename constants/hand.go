package constants

import "strings"

type Hand string

const (
	HandLeft  Hand = "left"
	HandRight Hand = "right"
)

// MaxFollowUpQuestions is how many follow-up questions one analysis may receive.
const MaxFollowUpQuestions = 3

// CanonicalizeHand maps user input onto a Hand. Empty input defaults to the right hand.
func CanonicalizeHand(input string) (Hand, bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", "right", "r", "dominant":
		return HandRight, true
	case "left", "l", "non-dominant":
		return HandLeft, true
	}
	return HandRight, false
}
