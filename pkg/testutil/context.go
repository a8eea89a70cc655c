package testutil

import (
	"net/http"
	"time"

	"walletid/pkg/requestcontext"
)

// WithActor simulates what the admin auth middleware does for an
// authenticated request.
func WithActor(req *http.Request, actor string) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
