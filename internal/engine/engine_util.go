package engine

import (
	"slices"
	"time"
)

// clone copies s deeply enough that mutating the copy never aliases the
// original: the users slice and deck get fresh backing arrays. Vote pointers
// are shared but always replaced, never written through.
func (s State) clone() State {
	next := s
	next.Users = slices.Clone(s.Users)
	next.VotingOptions = slices.Clone(s.VotingOptions)
	if s.TimerStartedAt != nil {
		t := *s.TimerStartedAt
		next.TimerStartedAt = &t
	}
	return next
}

// Estimators returns the users with the estimator role, in seat order.
func Estimators(s State) []User {
	var out []User
	for _, u := range s.Users {
		if u.Role == RoleEstimator {
			out = append(out, u)
		}
	}
	return out
}

// RemainingSeconds derives the round time left from the stored start/duration
// pair. The server never ticks; anyone needing a countdown recomputes it.
func RemainingSeconds(s State, now time.Time) int {
	if s.TimerStartedAt == nil {
		return 0
	}
	left := s.TimerDuration - int(now.Sub(*s.TimerStartedAt)/time.Second)
	if left < 0 {
		return 0
	}
	return left
}
