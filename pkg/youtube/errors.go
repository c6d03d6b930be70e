package youtube

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidURL        = errors.New("invalid youtube url")
	ErrVideoUnavailable  = errors.New("video unavailable")
	ErrCaptionsDisabled  = errors.New("captions disabled")
	ErrNoTranscript      = errors.New("no transcript for the requested languages")
	ErrRateLimited       = errors.New("rate limited by youtube")
	ErrMalformedResponse = errors.New("malformed youtube response")
)

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.Code, http.StatusText(e.Code))
}
