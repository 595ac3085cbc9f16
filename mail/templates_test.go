package mail

import (
	"strings"
	"testing"
	"time"
)

func TestOTPMessageCarriesCodeAndLifetime(t *testing.T) {
	_, body := OTPMessage("0417", 10*time.Minute)
	if !strings.Contains(body, "0417") {
		t.Fatal("body missing code")
	}
	if !strings.Contains(body, "10 minutes") {
		t.Fatal("body missing lifetime")
	}
}

func TestResetMessageUsesRecipientTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	expires := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, body := ResetMessage("https://example.com/reset?t=x", expires, loc)
	if !strings.Contains(body, "https://example.com/reset?t=x") {
		t.Fatal("body missing link")
	}
	if !strings.Contains(body, "15:00 UTC+3") {
		t.Fatalf("expiry not rendered in recipient zone: %q", body)
	}

	_, body = ResetMessage("https://example.com/reset?t=x", expires, nil)
	if !strings.Contains(body, "12:00") {
		t.Fatalf("nil zone should fall back to UTC: %q", body)
	}
}
