package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/fkhayef/expensesplitter/pkg/response"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// MemberIDKey is the context key for the acting member ID
	MemberIDKey ContextKey = "member_id"

	// MemberHeader carries the acting member's account id
	MemberHeader = "X-Member-ID"
)

// MemberMiddleware takes the acting member from the X-Member-ID header.
// Authentication is left to whatever sits in front of the API; requests
// without the header continue anonymously.
func MemberMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if memberID := strings.TrimSpace(r.Header.Get(MemberHeader)); memberID != "" {
			r = r.WithContext(WithMemberID(r.Context(), memberID))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireMember rejects requests that carry no acting member
func RequireMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetMemberID(r.Context()); !ok {
			response.Unauthorized(w, MemberHeader+" header required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithMemberID stores the acting member in ctx
func WithMemberID(ctx context.Context, memberID string) context.Context {
	return context.WithValue(ctx, MemberIDKey, memberID)
}

// GetMemberID extracts the acting member ID from the request context
func GetMemberID(ctx context.Context) (string, bool) {
	memberID, ok := ctx.Value(MemberIDKey).(string)
	return memberID, ok && memberID != ""
}
