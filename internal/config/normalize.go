// internal/config/normalize.go
package config

import "github.com/tamzrod/uartcat/internal/status"

const (
	DefaultMasterTimeoutMs = 50
	DefaultPollIntervalMs  = 1000
	DefaultPollTimeoutMs   = 500
	DefaultSlaveBuffer     = 256
	DefaultLockBudgetUs    = 500
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if m := cfg.Master; m != nil {
		if m.TimeoutMs <= 0 {
			m.TimeoutMs = DefaultMasterTimeoutMs
		}

		for ui := range m.Units {
			u := &m.Units[ui]

			if u.Poll.IntervalMs <= 0 {
				u.Poll.IntervalMs = DefaultPollIntervalMs
			}
			if u.Poll.TimeoutMs <= 0 {
				u.Poll.TimeoutMs = DefaultPollTimeoutMs
			}

			// Truncate device_name; ASCII already validated
			if len(u.DeviceName) > status.DeviceNameMaxChars {
				u.DeviceName = u.DeviceName[:status.DeviceNameMaxChars]
			}
		}
	}

	if s := cfg.Slave; s != nil {
		if s.Buffer <= 0 {
			s.Buffer = DefaultSlaveBuffer
		}
		if s.LockBudgetUs <= 0 {
			s.LockBudgetUs = DefaultLockBudgetUs
		}
	}

	// Port, engine and limit defaults belong to transport, master and slave.
}
