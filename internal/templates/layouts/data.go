// Package layouts carries request data from handlers and middleware to the
// page templates through the Go context. Only simple types are stored so
// templates never import plugin packages.
//
// Data flow: Route guard -> Echo context -> ContextInjector -> Go context -> pages
package layouts

import "context"

// ctxKey is a private type for context keys to prevent collisions.
type ctxKey string

const (
	keyIsAuthenticated ctxKey = "layout_is_authenticated"
	keyUserID          ctxKey = "layout_user_id"
	keyUserRole        ctxKey = "layout_user_role"
	keyCSRFToken       ctxKey = "layout_csrf_token"
)

// --- Setters (used by the context injector in internal/app) ---

func SetIsAuthenticated(ctx context.Context, authed bool) context.Context {
	return context.WithValue(ctx, keyIsAuthenticated, authed)
}

func SetUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyUserID, id)
}

// SetUserRole stores the session role ("admin" or "mod").
func SetUserRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, keyUserRole, role)
}

func SetCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, keyCSRFToken, token)
}

// --- Getters (used by templates) ---

func IsAuthenticated(ctx context.Context) bool {
	authed, _ := ctx.Value(keyIsAuthenticated).(bool)
	return authed
}

func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(keyUserID).(string)
	return id
}

func UserRole(ctx context.Context) string {
	role, _ := ctx.Value(keyUserRole).(string)
	return role
}

// IsAdmin reports whether the signed-in user holds the admin role.
func IsAdmin(ctx context.Context) bool {
	return UserRole(ctx) == "admin"
}

func GetCSRFToken(ctx context.Context) string {
	token, _ := ctx.Value(keyCSRFToken).(string)
	return token
}
