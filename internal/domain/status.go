package domain

import (
	"errors"
	"fmt"
)

// LinkStatus is the lifecycle state of a pending link.
type LinkStatus string

const (
	StatusPending        LinkStatus = "pending"
	StatusApproved       LinkStatus = "approved"
	StatusActive         LinkStatus = "active"
	StatusUserDeleted    LinkStatus = "user_deleted"
	StatusManualOverride LinkStatus = "manual_override"
)

// ErrInvalidTransition is wrapped by ValidateTransition failures.
var ErrInvalidTransition = errors.New("invalid status transition")

var validTransitions = map[LinkStatus][]LinkStatus{
	StatusPending:        {StatusApproved, StatusManualOverride},
	StatusApproved:       {StatusActive, StatusManualOverride},
	StatusActive:         {StatusUserDeleted},
	StatusUserDeleted:    {},
	StatusManualOverride: {},
}

// ParseLinkStatus validates a status name.
func ParseLinkStatus(s string) (LinkStatus, error) {
	status := LinkStatus(s)
	if _, ok := validTransitions[status]; !ok {
		return "", fmt.Errorf("unknown link status %q", s)
	}
	return status, nil
}

// ValidateTransition checks from → to against the transition table.
func ValidateTransition(from, to LinkStatus) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
