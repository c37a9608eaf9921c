package api

import (
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// bearerTransport sets the Authorization header from a token source when one is available.
// Unlike oauth2.Transport it still sends the request when there is no token, which is how
// anonymous browsing works.
type bearerTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
	logger zerolog.Logger
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.source == nil {
		return t.base.RoundTrip(req)
	}

	tok, err := t.source.Token()
	if err != nil {
		t.logger.Warn().Err(err).Msg("reading auth token failed, sending request anonymously")
		return t.base.RoundTrip(req)
	}
	if tok == nil || tok.AccessToken == "" {
		return t.base.RoundTrip(req)
	}

	r := req.Clone(req.Context())
	tok.SetAuthHeader(r)
	return t.base.RoundTrip(r)
}
