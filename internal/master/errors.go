// internal/master/errors.go
package master

import "errors"

var (
	// ErrTransport: the link failed. Fatal for Run.
	ErrTransport = errors.New("master: transport failure")
	// ErrTimeout: the telegram did not come back within the cycle timeout.
	ErrTimeout = errors.New("master: telegram timed out")
	// ErrNoResponse: no slave matched. A present but busy slave reports
	// ErrRejected instead.
	ErrNoResponse = errors.New("master: no slave responded")
	// ErrConflict: more than one slave matched a fixed or positional address.
	ErrConflict = errors.New("master: more than one slave responded")
	// ErrCount: a logical request expected a different number of slaves.
	ErrCount = errors.New("master: unexpected working counter")
	// ErrAmbiguous: slaves supplied different values for the same logical bytes.
	ErrAmbiguous = errors.New("master: ambiguous logical data")
	// ErrRejected: the matching slave refused the exchange or was too busy
	// to serve it. Its Error register tells which.
	ErrRejected = errors.New("master: rejected by slave")
	// ErrMismatch: the returning datagram does not correspond to the one sent.
	ErrMismatch = errors.New("master: returned datagram mismatch")
	// ErrAccess: the register does not allow the operation.
	ErrAccess = errors.New("master: access not permitted")
	// ErrClosed: the engine is not running any more.
	ErrClosed = errors.New("master: closed")
	// ErrRunning: Run was called twice.
	ErrRunning = errors.New("master: already running")
)

// Code maps an error to the stable numeric code used in status blocks.
// 0 means no error; 1 is any error without a dedicated code.
func Code(err error) uint16 {
	if err == nil {
		return 0
	}

	codes := []struct {
		err  error
		code uint16
	}{
		{ErrTransport, 2},
		{ErrTimeout, 3},
		{ErrNoResponse, 4},
		{ErrConflict, 5},
		{ErrCount, 6},
		{ErrAmbiguous, 7},
		{ErrRejected, 8},
		{ErrMismatch, 9},
		{ErrClosed, 10},
		{ErrAccess, 11},
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}

	type coder interface{ Code() uint16 }
	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return 1
}
