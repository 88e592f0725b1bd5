package middleware

import (
	"net/http"

	"github.com/leadrelay/keygate/internal/model"
	"github.com/leadrelay/keygate/internal/permission"
)

// RequirePermission allows the request only when the key grants p.
// It must run after Authenticator.
func RequirePermission(p string) func(http.Handler) http.Handler {
	return gate(func(kc *model.KeyContext, set permission.Set) map[string]any {
		if set.Has(p) {
			return nil
		}
		return map[string]any{
			"required_permission": p,
			"current_permissions": currentPermissions(kc),
		}
	})
}

// RequireAll allows the request only when the key grants every permission.
func RequireAll(ps ...string) func(http.Handler) http.Handler {
	return gate(func(kc *model.KeyContext, set permission.Set) map[string]any {
		missing := set.Missing(ps)
		if len(missing) == 0 {
			return nil
		}
		return map[string]any{
			"missing_permissions":  missing,
			"required_permissions": ps,
			"current_permissions":  currentPermissions(kc),
		}
	})
}

// RequireAny allows the request when the key grants at least one permission.
func RequireAny(ps ...string) func(http.Handler) http.Handler {
	return gate(func(kc *model.KeyContext, set permission.Set) map[string]any {
		if set.HasAny(ps) {
			return nil
		}
		return map[string]any{
			"required_permissions": ps,
			"current_permissions":  currentPermissions(kc),
		}
	})
}

// RequireMethodPermission gates a mounted resource by HTTP method: GET and
// HEAD need resource:read, POST, PUT and PATCH need resource:write, DELETE
// needs resource:delete. Any other method is checked as a write.
func RequireMethodPermission(resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		gated := map[string]http.Handler{}
		for _, action := range []string{permission.ActionRead, permission.ActionWrite, permission.ActionDelete} {
			gated[action] = RequirePermission(permission.For(resource, action))(next)
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gated[MethodAction(r.Method)].ServeHTTP(w, r)
		})
	}
}

// MethodAction maps an HTTP method to the permission action it requires.
func MethodAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return permission.ActionRead
	case http.MethodDelete:
		return permission.ActionDelete
	default:
		return permission.ActionWrite
	}
}

// gate runs check against the request's key; a non-nil result denies the
// request and becomes the error details.
func gate(check func(*model.KeyContext, permission.Set) map[string]any) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			kc := GetKeyContext(r.Context())
			if kc == nil {
				WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required", nil)
				return
			}
			if denied := check(kc, permission.NewSet(kc.Permissions)); denied != nil {
				WriteError(w, http.StatusForbidden, CodeInsufficientPermissions,
					"API key does not have the required permissions", denied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func currentPermissions(kc *model.KeyContext) []string {
	if kc.Permissions == nil {
		return []string{}
	}
	return kc.Permissions
}
