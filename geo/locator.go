package geo

import "time"

// Locator answers best-effort geography questions about a client address.
// Implementations must never fail a request: unknown answers are the
// placeholder values, not errors.
type Locator interface {
	// Location returns "city, country" for the address, or "-" when unknown.
	Location(ip string) string
	// Timezone returns the address's timezone, or UTC when unknown.
	Timezone(ip string) *time.Location
}

// Static is the Locator used when no GeoIP backend is configured. Every
// answer is the unknown placeholder.
type Static struct{}

func (Static) Location(string) string { return "-" }

func (Static) Timezone(string) *time.Location { return time.UTC }
