package httpx

import (
	"net/http"
	"strings"

	"github.com/mehmetcc/storefront/internal/api"
)

// Auth endpoints never carry a bearer token and never trigger a refresh.
var authEndpoints = []string{
	api.PathLogin,
	api.PathRegister,
	api.PathRefreshToken,
}

// Public collections: anonymous reads of these must keep working with a stale
// or missing token, so a 401 here never redirects.
var publicCollections = []string{
	"/Products",
	"/Categories",
	"/Home",
	"/Photo",
}

// IsAuthEndpoint matches whole path segments, so /Account/LoginHistory is
// still an ordinary protected endpoint.
func IsAuthEndpoint(req *http.Request) bool {
	path := req.URL.Path
	for _, p := range authEndpoints {
		if strings.HasSuffix(path, p) || strings.Contains(path, p+"/") {
			return true
		}
	}
	return false
}

func IsPublicEndpoint(req *http.Request) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return false
	}
	path := req.URL.Path
	for _, c := range publicCollections {
		if strings.Contains(path, c+"/") || strings.HasSuffix(path, c) {
			return true
		}
	}
	return false
}

// IsGuestCartRead is the one protected request that fails silently for a
// caller without a session, so locally cached cart data stays on screen.
func IsGuestCartRead(req *http.Request) bool {
	return req.Method == http.MethodGet && strings.Contains(req.URL.Path, api.PathCart)
}
