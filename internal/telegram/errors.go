// internal/telegram/errors.go
package telegram

import "errors"

var (
	// ErrFraming reports bytes that do not form a telegram:
	// bad header check, impossible length, unknown command,
	// or datagrams that do not line up with the declared length.
	ErrFraming = errors.New("telegram: framing error")

	// ErrIntegrity reports a datagram check or trailer CRC mismatch.
	ErrIntegrity = errors.New("telegram: integrity error")

	// ErrTooLarge reports a telegram or datagram exceeding the limits.
	ErrTooLarge = errors.New("telegram: too large")

	// ErrEmpty reports a telegram without datagrams.
	ErrEmpty = errors.New("telegram: no datagrams")
)
