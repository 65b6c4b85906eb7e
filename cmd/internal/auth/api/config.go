package authapi

import "time"

// Config controls auth API behavior. It is loaded with the NOTEBOX_AUTH_ prefix.
type Config struct {
	// TrustProxy makes clientIP honor X-Forwarded-For / X-Real-IP.
	TrustProxy   bool  `env:"TRUST_PROXY,default=false"`
	MaxBodyBytes int64 `env:"MAX_BODY_BYTES,default=1048576"`

	// Failed-login budgets per email and per client IP within LoginWindow.
	LoginMaxFailures   int           `env:"LOGIN_MAX_FAILURES,default=5"`
	LoginIPMaxFailures int           `env:"LOGIN_IP_MAX_FAILURES,default=20"`
	LoginWindow        time.Duration `env:"LOGIN_WINDOW,default=15m"`
}

// DefaultConfig mirrors the env defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:       1 << 20,
		LoginMaxFailures:   5,
		LoginIPMaxFailures: 20,
		LoginWindow:        15 * time.Minute,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	if c.LoginMaxFailures <= 0 {
		c.LoginMaxFailures = def.LoginMaxFailures
	}
	if c.LoginIPMaxFailures <= 0 {
		c.LoginIPMaxFailures = def.LoginIPMaxFailures
	}
	if c.LoginWindow <= 0 {
		c.LoginWindow = def.LoginWindow
	}
	return c
}
