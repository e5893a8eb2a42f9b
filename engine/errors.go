package engine

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// BlockedError is returned when a page loaded but is an anti-bot wall.
type BlockedError struct {
	URL        string
	Engine     string
	Block      BlockType
	StatusCode int
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s: blocked (%s, status %d) at %s", e.Engine, e.Block, e.StatusCode, e.URL)
}

// AsBlocked returns the BlockedError in err's chain, if any.
func AsBlocked(err error) (*BlockedError, bool) {
	var be *BlockedError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// TransientError wraps an error that is safe to retry (5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or matches common transient network failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
