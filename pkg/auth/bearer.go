package auth

import "context"

type bearerTokenKey struct{}

// ContextWithBearerToken stores the caller's raw bearer token so
// downstream transports configured with forwardBearer can pass it on
// to remote tool servers.
func ContextWithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey{}, token)
}

// BearerTokenFromContext returns the stored bearer token, or "" when
// the context carries none.
func BearerTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(bearerTokenKey{}).(string)
	return token
}
