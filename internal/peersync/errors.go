package peersync

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrPeerNotConfigured is returned when the peer URL or key is unset.
var ErrPeerNotConfigured = errors.New("peer sync is not configured: set sync.peer_url and sync.peer_key")

// PeerError is a failed exchange with the peer. StatusCode is 0 for transport
// and decoding failures.
type PeerError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Hint       string `json:"hint,omitempty"`
	// Cached is set when the error was replayed from the failure cache.
	Cached bool `json:"-"`
}

func (e *PeerError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("peer returned %d: %s", e.StatusCode, e.Message)
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func hintFor(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "authentication failed: sync.peer_key must equal the peer's sync.local_key"
	case status == http.StatusTooManyRequests:
		return "peer is rate limiting requests, try again later"
	case status == http.StatusNotFound:
		return "sync.peer_url does not point at a linksync instance"
	case status >= http.StatusInternalServerError:
		return "peer server error, check the peer's logs"
	default:
		return ""
	}
}
