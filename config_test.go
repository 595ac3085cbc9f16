package authcore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tradebook/authcore/jwt"
)

func validTestConfig(t *testing.T) Config {
	t.Helper()
	priv, pub, err := jwt.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	cfg := defaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	return cfg
}

func TestConfigDefaultsValidate(t *testing.T) {
	cfg := validTestConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestConfigPublicKeyOptional(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.JWT.PublicKey = nil
	if err := cfg.Validate(); err != nil {
		t.Fatalf("private key alone must validate: %v", err)
	}
}

func TestConfigValidateRejections(t *testing.T) {
	cases := map[string]func(*Config){
		"missing keys":            func(c *Config) { c.JWT.PrivateKey = nil },
		"access outlives refresh": func(c *Config) { c.JWT.AccessTTL = c.JWT.RefreshTTL },
		"zero access ttl":         func(c *Config) { c.JWT.AccessTTL = 0 },
		"zero cache ttl":          func(c *Config) { c.Session.CacheTTL = 0 },
		"zero sessions per user":  func(c *Config) { c.Session.MaxPerUser = 0 },
		"zero create retries":     func(c *Config) { c.Session.CreateRetries = 0 },
		"zero login attempts":     func(c *Config) { c.Login.MaxAttempts = 0 },
		"short otp code":          func(c *Config) { c.OTP.Digits = 3 },
		"otp cooldown over ttl":   func(c *Config) { c.OTP.Cooldown = c.OTP.TTL },
		"reset cooldown over ttl": func(c *Config) { c.Reset.Cooldown = c.Reset.TTL },
		"zero lock ttl":           func(c *Config) { c.Lock.TTL = 0 },
		"zero lock wait":          func(c *Config) { c.Lock.Wait = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validTestConfig(t)
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation failure")
			}
		})
	}
}

func TestCloneConfigDetachesKeys(t *testing.T) {
	cfg := validTestConfig(t)
	clone := cloneConfig(cfg)

	clone.JWT.PrivateKey[0] ^= 0xff
	if cfg.JWT.PrivateKey[0] == clone.JWT.PrivateKey[0] {
		t.Fatal("clone shares the private key slice")
	}
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	priv, pub, err := jwt.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}

	dir := t.TempDir()
	privPath := filepath.Join(dir, "jwt.key")
	pubPath := filepath.Join(dir, "jwt.pub")
	if err := os.WriteFile(privPath, priv, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pubPath, pub, 0o600); err != nil {
		t.Fatal(err)
	}

	yaml := strings.Join([]string{
		"jwt:",
		"  access_ttl: 30m",
		"  issuer: tradebook",
		"  private_key_file: " + privPath,
		"  public_key_file: " + pubPath,
		"login:",
		"  max_attempts: 5",
		"reset:",
		"  link_base: https://app.example.com/reset?token=",
		"audit:",
		"  enabled: true",
	}, "\n")
	path := filepath.Join(dir, "authcore.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.JWT.AccessTTL != 30*time.Minute {
		t.Fatalf("access ttl = %v", cfg.JWT.AccessTTL)
	}
	if cfg.JWT.Issuer != "tradebook" {
		t.Fatalf("issuer = %q", cfg.JWT.Issuer)
	}
	if cfg.Login.MaxAttempts != 5 {
		t.Fatalf("max attempts = %d", cfg.Login.MaxAttempts)
	}
	if !cfg.Audit.Enabled {
		t.Fatal("audit not enabled")
	}
	if string(cfg.JWT.PrivateKey) != string(priv) || string(cfg.JWT.PublicKey) != string(pub) {
		t.Fatal("key files not loaded")
	}

	// Untouched knobs keep their defaults.
	if cfg.JWT.RefreshTTL != 90*24*time.Hour {
		t.Fatalf("refresh ttl = %v", cfg.JWT.RefreshTTL)
	}
	if cfg.OTP.Digits != 4 {
		t.Fatalf("otp digits = %d", cfg.OTP.Digits)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config must validate: %v", err)
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authcore.yaml")
	if err := os.WriteFile(path, []byte("jwt:\n  access_ttl: soon\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse failure")
	}
}
