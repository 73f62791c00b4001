package tenant

import (
	"context"
	"log"
	"net/http"
	"strings"
)

// SlugHeader identifies the caller's organization on API requests.
const SlugHeader = "X-Organization-Slug"

// Resolver looks up an active organization by slug. Implementations return
// ErrNotFound-style errors when the slug does not resolve; the middleware
// treats any resolution failure as "no organization".
type Resolver interface {
	ResolveOrganization(ctx context.Context, slug string) (Organization, error)
}

// Middleware resolves the organization slug header and attaches the
// organization to the request context. A missing or unresolvable slug leaves
// the context without an organization; scoped operations downstream reject
// such requests rather than running unfiltered.
func Middleware(resolver Resolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := strings.TrimSpace(r.Header.Get(SlugHeader))
		if slug == "" || resolver == nil {
			next.ServeHTTP(w, r)
			return
		}

		org, err := resolver.ResolveOrganization(r.Context(), slug)
		if err != nil {
			log.Printf("tenant: slug %q did not resolve: %v", slug, err)
			next.ServeHTTP(w, r)
			return
		}
		if !org.IsActive {
			log.Printf("tenant: slug %q resolves to inactive organization", slug)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithOrganization(r.Context(), org)))
	})
}
