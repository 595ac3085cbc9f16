// Package geo resolves client addresses to a coarse location and timezone
// for session records and reset-email formatting.
//
// The engine only depends on [Locator]; deployments plug in a real GeoIP
// backend, and [Static] is the no-backend fallback that degrades to "-"
// placeholders and UTC.
package geo
