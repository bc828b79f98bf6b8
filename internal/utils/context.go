package utils

import (
	"context"
)

type contextKey string

const ContextPrincipalKey contextKey = "principal"

// Principal is the authenticated caller as loaded from app_auth.users.
type Principal struct {
	UserID string
	FirmID string
	Role   string
	Email  string
}

func (p Principal) HasFirm() bool { return p.FirmID != "" }

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ContextPrincipalKey, p)
}

func GetPrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ContextPrincipalKey).(Principal)
	return p, ok
}

func GetUserIDFromContext(ctx context.Context) (string, bool) {
	p, ok := GetPrincipalFromContext(ctx)
	if !ok || p.UserID == "" {
		return "", false
	}
	return p.UserID, true
}
