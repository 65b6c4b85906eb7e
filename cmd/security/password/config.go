package password

import (
	"context"
	"fmt"
	"runtime"

	"github.com/sethvargo/go-envconfig"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
// Parallelism 0 means "derive from the CPU count".
type Argon2idParams struct {
	MemoryKiB   uint32 `env:"MEMORY_KIB,default=65536"`
	Iterations  uint32 `env:"ITERATIONS,default=3"`
	Parallelism uint8  `env:"PARALLELISM,default=0"`
	SaltLength  uint32 `env:"SALT_LEN,default=16"`
	KeyLength   uint32 `env:"KEY_LEN,default=32"`
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int `env:"MIN_LEN,default=6"`
	MaxLength int `env:"MAX_LEN,default=256"`
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool `env:"REJECT_VERY_WEAK,default=false"`
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams `env:",prefix=ARGON2_"`
	Policy Policy         `env:",prefix=PASSWORD_"`
}

// DefaultConfig returns the baseline used when no environment overrides are present.
func DefaultConfig() Config {
	cfg := Config{
		Params: Argon2idParams{
			MemoryKiB:  64 * 1024, // 64 MiB
			Iterations: 3,
			SaltLength: 16,
			KeyLength:  32,
		},
		Policy: Policy{
			MinLength: 6,
			MaxLength: 256,
		},
	}
	cfg.Params.Parallelism = defaultParallelism()
	return cfg
}

// FromEnv loads config from the process environment.
//
// Env surface (prefix is applied by the caller's struct nesting, NOTEBOX_ at the app level):
//   - NOTEBOX_PASSWORD_MIN_LEN, NOTEBOX_PASSWORD_MAX_LEN, NOTEBOX_PASSWORD_REJECT_VERY_WEAK
//   - NOTEBOX_ARGON2_MEMORY_KIB, NOTEBOX_ARGON2_ITERATIONS, NOTEBOX_ARGON2_PARALLELISM
//   - NOTEBOX_ARGON2_SALT_LEN, NOTEBOX_ARGON2_KEY_LEN
func FromEnv(ctx context.Context) (Config, error) {
	return FromLookuper(ctx, envconfig.PrefixLookuper("NOTEBOX_", envconfig.OsLookuper()))
}

// FromLookuper loads config from an arbitrary envconfig.Lookuper.
func FromLookuper(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return Config{}, err
	}
	if err := cfg.Normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MinLengthFloor is the lowest accepted MIN_LEN.
const MinLengthFloor = 6

// Normalize fills derived defaults and checks bounds.
func (c *Config) Normalize() error {
	if c.Params.Parallelism == 0 {
		c.Params.Parallelism = defaultParallelism()
	}

	switch {
	case c.Params.MemoryKiB < 8*1024 || c.Params.MemoryKiB > 1024*1024:
		return fmt.Errorf("argon2 memory_kib out of range [%d..%d]", 8*1024, 1024*1024)
	case c.Params.Iterations < 1 || c.Params.Iterations > 20:
		return fmt.Errorf("argon2 iterations out of range [1..20]")
	case c.Params.Parallelism > 64:
		return fmt.Errorf("argon2 parallelism out of range [1..64]")
	case c.Params.SaltLength < 8 || c.Params.SaltLength > 64:
		return fmt.Errorf("argon2 salt_len out of range [8..64]")
	case c.Params.KeyLength < 16 || c.Params.KeyLength > 64:
		return fmt.Errorf("argon2 key_len out of range [16..64]")
	case c.Policy.MinLength < MinLengthFloor:
		return fmt.Errorf("password min_len must be at least %d", MinLengthFloor)
	}

	if c.Policy.MinLength > c.Policy.MaxLength {
		return fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			c.Policy.MinLength,
			c.Policy.MaxLength,
		)
	}
	return nil
}

// defaultParallelism clamps the CPU count to [1..4] to keep container usage predictable.
func defaultParallelism() uint8 {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}
	return uint8(threads) // #nosec G115 -- clamped to [1..4] above.
}
