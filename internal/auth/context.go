// Package auth carries the requesting user through a request context.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// UserHeader names the header a trusted proxy sets to the authenticated user.
const UserHeader = "X-User"

type contextKey string

const userKey contextKey = "user"

// ContextWithUser returns a new context that carries the authenticated user.
func ContextWithUser(ctx context.Context, user string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext retrieves the authenticated user from the context, if any.
func UserFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	user, ok := ctx.Value(userKey).(string)
	if !ok || user == "" {
		return "", false
	}
	return user, true
}

// EnforceCreator allows an action on a batch only to its creator when both the
// request and the batch name a user. Anonymous batches and requests pass.
func EnforceCreator(ctx context.Context, createdBy string) error {
	user, ok := UserFromContext(ctx)
	if !ok || createdBy == "" {
		return nil
	}
	if !strings.EqualFold(user, createdBy) {
		return fmt.Errorf("batch was created by %s", createdBy)
	}
	return nil
}

// Middleware copies UserHeader into the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := strings.TrimSpace(r.Header.Get(UserHeader)); user != "" {
			r = r.WithContext(ContextWithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}
