package authcore

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileDuration accepts Go duration strings ("90s", "24h") in YAML.
type fileDuration time.Duration

func (d *fileDuration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = fileDuration(parsed)
	return nil
}

// fileConfig mirrors the YAML layout. Absent fields keep their defaults,
// so an operator only writes the knobs they change.
type fileConfig struct {
	JWT struct {
		AccessTTL      *fileDuration `yaml:"access_ttl"`
		RefreshTTL     *fileDuration `yaml:"refresh_ttl"`
		Issuer         *string       `yaml:"issuer"`
		Leeway         *fileDuration `yaml:"leeway"`
		PrivateKeyFile *string       `yaml:"private_key_file"`
		PublicKeyFile  *string       `yaml:"public_key_file"`
	} `yaml:"jwt"`
	Session struct {
		CacheTTL   *fileDuration `yaml:"cache_ttl"`
		MaxPerUser *int          `yaml:"max_per_user"`
	} `yaml:"session"`
	Login struct {
		MaxAttempts *int          `yaml:"max_attempts"`
		Window      *fileDuration `yaml:"window"`
	} `yaml:"login"`
	OTP struct {
		TTL          *fileDuration `yaml:"ttl"`
		Cooldown     *fileDuration `yaml:"cooldown"`
		MaxRetries   *int          `yaml:"max_retries"`
		Digits       *int          `yaml:"digits"`
		MaxSendPerIP *int          `yaml:"max_send_per_ip"`
		SendWindow   *fileDuration `yaml:"send_window"`
	} `yaml:"otp"`
	Reset struct {
		TTL      *fileDuration `yaml:"ttl"`
		Cooldown *fileDuration `yaml:"cooldown"`
		LinkBase *string       `yaml:"link_base"`
	} `yaml:"reset"`
	Audit struct {
		Enabled    *bool `yaml:"enabled"`
		BufferSize *int  `yaml:"buffer_size"`
		DropIfFull *bool `yaml:"drop_if_full"`
	} `yaml:"audit"`
	Metrics struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

// LoadConfig reads a YAML file and overlays it on the defaults. Signing
// keys are referenced by path, never inlined in the file.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	setDuration(&cfg.JWT.AccessTTL, fc.JWT.AccessTTL)
	setDuration(&cfg.JWT.RefreshTTL, fc.JWT.RefreshTTL)
	setDuration(&cfg.JWT.Leeway, fc.JWT.Leeway)
	set(&cfg.JWT.Issuer, fc.JWT.Issuer)

	if fc.JWT.PrivateKeyFile != nil {
		if cfg.JWT.PrivateKey, err = os.ReadFile(*fc.JWT.PrivateKeyFile); err != nil {
			return cfg, fmt.Errorf("read private key: %w", err)
		}
	}
	if fc.JWT.PublicKeyFile != nil {
		if cfg.JWT.PublicKey, err = os.ReadFile(*fc.JWT.PublicKeyFile); err != nil {
			return cfg, fmt.Errorf("read public key: %w", err)
		}
	}

	setDuration(&cfg.Session.CacheTTL, fc.Session.CacheTTL)
	set(&cfg.Session.MaxPerUser, fc.Session.MaxPerUser)

	set(&cfg.Login.MaxAttempts, fc.Login.MaxAttempts)
	setDuration(&cfg.Login.Window, fc.Login.Window)

	setDuration(&cfg.OTP.TTL, fc.OTP.TTL)
	setDuration(&cfg.OTP.Cooldown, fc.OTP.Cooldown)
	set(&cfg.OTP.MaxRetries, fc.OTP.MaxRetries)
	set(&cfg.OTP.Digits, fc.OTP.Digits)
	set(&cfg.OTP.MaxSendPerIP, fc.OTP.MaxSendPerIP)
	setDuration(&cfg.OTP.SendWindow, fc.OTP.SendWindow)

	setDuration(&cfg.Reset.TTL, fc.Reset.TTL)
	setDuration(&cfg.Reset.Cooldown, fc.Reset.Cooldown)
	set(&cfg.Reset.LinkBase, fc.Reset.LinkBase)

	set(&cfg.Audit.Enabled, fc.Audit.Enabled)
	set(&cfg.Audit.BufferSize, fc.Audit.BufferSize)
	set(&cfg.Audit.DropIfFull, fc.Audit.DropIfFull)
	set(&cfg.Metrics.Enabled, fc.Metrics.Enabled)

	return cfg, nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *fileDuration) {
	if src != nil {
		*dst = time.Duration(*src)
	}
}
