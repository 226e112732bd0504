package auth

import (
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

const (
	HeaderPrincipalID   = "X-Principal-Id"
	HeaderPrincipalRole = "X-Principal-Role"
)

// Middleware resolves the principal from the identity headers set by the
// external auth gateway and stores it in the request context. Requests
// without a valid principal are rejected.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idParam := r.Header.Get(HeaderPrincipalID)
		roleParam := Role(r.Header.Get(HeaderPrincipalRole))

		id, err := uuid.FromString(idParam)
		if err != nil {
			log.Warn().Err(err).Str("principal_id", idParam).Msg("Failed to parse principal id header")
			http.Error(w, "missing or invalid principal", http.StatusUnauthorized)
			return
		}

		if !roleParam.Valid() {
			log.Warn().Str("principal_role", string(roleParam)).Msg("Unknown principal role header")
			http.Error(w, "missing or invalid principal", http.StatusUnauthorized)
			return
		}

		ctx := WithPrincipal(r.Context(), Principal{ID: id, Role: roleParam})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
