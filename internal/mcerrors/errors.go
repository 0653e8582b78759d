// Package mcerrors holds the error kinds shared by every mcstatus package.
// Errors returned by the other packages wrap exactly one of these, so callers
// can branch on them with errors.Is.
package mcerrors

import "errors"

var (
	ErrAddress    = errors.New("invalid address")
	ErrConnection = errors.New("connection failed")
	ErrTimeout    = errors.New("timed out")
	ErrProtocol   = errors.New("protocol error")
	ErrConfig     = errors.New("bad configuration")
)

// Kind returns the sentinel wrapped by err, or nil when err carries none.
func Kind(err error) error {
	for _, kind := range []error{ErrAddress, ErrConnection, ErrTimeout, ErrProtocol, ErrConfig} {
		if errors.Is(err, kind) {
			return kind
		}
	}

	return nil
}
