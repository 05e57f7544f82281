package audit

import "context"

// Client is the request context captured with every entry.
type Client struct {
	IPAddress string
	UserAgent string
}

type clientKey struct{}

// WithClient stores the caller's client context on ctx.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFrom returns the client stored by WithClient.
func ClientFrom(ctx context.Context) (Client, bool) {
	c, ok := ctx.Value(clientKey{}).(Client)
	return c, ok
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
