package middleware

import (
	"net/http"
	"strings"
)

// CORS allows the configured origins. origins is a comma-separated list;
// "*" allows any origin.
func CORS(origins string) func(http.Handler) http.Handler {
	allowList := strings.Split(origins, ",")
	for i := range allowList {
		allowList[i] = strings.TrimSpace(allowList[i])
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqOrigin := r.Header.Get("Origin")
			allowed := allowList[0]

			if reqOrigin != "" && isAllowed(reqOrigin, allowList) {
				allowed = reqOrigin
			}

			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isAllowed(reqOrigin string, allowList []string) bool {
	for _, o := range allowList {
		if o == "*" || o == reqOrigin {
			return true
		}
	}
	return false
}
