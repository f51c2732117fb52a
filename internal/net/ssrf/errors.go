// Package ssrf keeps outbound image fetches away from loopback, private and
// link-local destinations.
package ssrf

import (
	"errors"
	"fmt"
)

// ErrBlocked matches every BlockedError.
var ErrBlocked = errors.New("destination blocked")

// BlockedError reports a host or address refused by the guard.
type BlockedError struct {
	Host   string
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked destination %s: %s", e.Host, e.Reason)
}

// Is makes errors.Is(err, ErrBlocked) true.
func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}

func blocked(host, reason string) error {
	return &BlockedError{Host: host, Reason: reason}
}
