package httptransport

import (
	"net/http"

	"github.com/cbout22/repofetch/internal/config"
)

// authTransport is a custom http.RoundTripper that adds the Authorization
// header. A token takes priority over username/password.
type authTransport struct {
	auth config.AuthInfo
	base http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid mutating the original
	r := req.Clone(req.Context())
	switch {
	case t.auth.Token != "":
		r.Header.Set("Authorization", "Bearer "+t.auth.Token)
	case t.auth.Username != "":
		r.SetBasicAuth(t.auth.Username, t.auth.Password)
	}
	return t.base.RoundTrip(r)
}
