package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// TenantFromContext returns the tenant bound to the request session.
func TenantFromContext(ctx context.Context) (Tenant, error) {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return Tenant{}, ErrNoTenant
	}
	tenant, ok := sess.Tenant()
	if !ok {
		return Tenant{}, ErrNoTenant
	}
	return tenant, nil
}
