package auth

import (
	"context"
	apperrors "vaxslot/pkg/errors"
	"vaxslot/pkg/model"
)

type principalKey struct{}

func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the zero Principal for anonymous requests.
func PrincipalFrom(ctx context.Context) model.Principal {
	p, _ := ctx.Value(principalKey{}).(model.Principal)
	return p
}

func RequireAuthenticated(p model.Principal) error {
	if !p.Authenticated() {
		return apperrors.Unauthenticated("Authentication required")
	}
	return nil
}

func RequireAdmin(p model.Principal) error {
	if err := RequireAuthenticated(p); err != nil {
		return err
	}
	if !p.IsAdmin() {
		return apperrors.Forbidden("Administrator role required")
	}
	return nil
}
