package authcore

import "context"

type clientIPContextKey struct{}
type deviceNameContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for delivery throttling, audit events, and session activity records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithDeviceName attaches a client-supplied device label to ctx, recorded
// on the session for the user's device overview.
func WithDeviceName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, deviceNameContextKey{}, name)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func deviceNameFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	name, _ := ctx.Value(deviceNameContextKey{}).(string)
	return name
}
