// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package password

// Config tunes the Argon2id memory-hard stretch used to turn a password
// into the blinding scalar x. Defaults are the widely
// recommended Argon2id interactive-login parameters; exact cost is left
// to the deployer.
type Config struct {
	// Time is Argon2id's time-cost (number of passes).
	Time uint32

	// Memory is Argon2id's memory cost in KiB.
	Memory uint32

	// Threads is Argon2id's parallelism degree.
	Threads uint8

	// KeyLen is the number of bytes Argon2id produces. 64 lets the output
	// feed curve.ReduceScalar directly without a second hashing step.
	KeyLen uint32
}

const (
	defaultTime    = 3
	defaultMemory  = 64 * 1024
	defaultThreads = 4
	defaultKeyLen  = 64
)

// DefaultConfig returns the implementer-chosen Argon2id cost
// parameters: t_cost=3, m_cost=64MiB, 4 threads.
func DefaultConfig() Config {
	return Config{
		Time:    defaultTime,
		Memory:  defaultMemory,
		Threads: defaultThreads,
		KeyLen:  defaultKeyLen,
	}
}

// Option configures a Config, following the module's functional-options
// pattern.
type Option func(*Config)

// WithTime overrides Argon2id's time-cost.
func WithTime(t uint32) Option {
	return func(c *Config) { c.Time = t }
}

// WithMemory overrides Argon2id's memory cost in KiB.
func WithMemory(m uint32) Option {
	return func(c *Config) { c.Memory = m }
}

// WithThreads overrides Argon2id's parallelism degree.
func WithThreads(t uint8) Option {
	return func(c *Config) { c.Threads = t }
}

// NewConfig builds a Config starting from DefaultConfig and applying opts.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
