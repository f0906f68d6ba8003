package httpapi

import (
	"context"

	"github.com/clubhub/marketplace/internal/domain/member"
	"github.com/clubhub/marketplace/internal/domain/party"
)

type authContextKey string

const authMemberKey authContextKey = "authMember"

func withAuthMember(ctx context.Context, m *member.Member) context.Context {
	if m == nil {
		return ctx
	}
	return context.WithValue(ctx, authMemberKey, m)
}

func authMemberFromContext(ctx context.Context) *member.Member {
	if v, ok := ctx.Value(authMemberKey).(*member.Member); ok {
		return v
	}
	return nil
}

// callerIdentity returns the resolved caller, or a zero identity when the
// request carries none. The core rejects zero identities.
func callerIdentity(ctx context.Context) party.Identity {
	if m := authMemberFromContext(ctx); m != nil {
		return m.Identity()
	}
	return party.Identity{}
}
