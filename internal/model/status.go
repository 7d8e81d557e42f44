package model

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
	StatusFulfilled Status = "FULFILLED"
	StatusRefunded  Status = "REFUNDED"
)

// transitions is the closed table of legal moves. A status missing as a key is terminal.
var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled},
	StatusPaid:    {StatusFulfilled, StatusRefunded},
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusPaid, StatusCancelled, StatusFulfilled, StatusRefunded:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

// CanTransitionTo reports whether s -> next is in the transition table.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool { return len(transitions[s]) == 0 }

// Reaches reports whether next is s itself or can follow it through legal moves.
func (s Status) Reaches(next Status) bool {
	if s == next {
		return true
	}
	for _, t := range transitions[s] {
		if t.Reaches(next) {
			return true
		}
	}
	return false
}
