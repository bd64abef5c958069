package strava

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNoCredentials is returned when neither an access token nor refresh
	// credentials are configured.
	ErrNoCredentials = errors.New("strava credentials not configured: set STRAVA_ACCESS_TOKEN or STRAVA_REFRESH_TOKEN with STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET")
	// ErrRefreshUnavailable is returned when a refresh is needed but the
	// client id, secret or refresh token is missing.
	ErrRefreshUnavailable = errors.New("strava token refresh unavailable: missing client id, client secret or refresh token")
)

// FieldError is one entry of the errors array in a Strava fault body.
type FieldError struct {
	Resource string `json:"resource"`
	Field    string `json:"field"`
	Code     string `json:"code"`
}

// APIError is a non-2xx response from the Strava API.
type APIError struct {
	Status  int          `json:"-"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	switch {
	case e.RateLimited():
		b.WriteString("strava rate limit exceeded")
	case e.Status == http.StatusUnauthorized:
		b.WriteString("strava authorization failed")
	case e.Status == http.StatusNotFound:
		b.WriteString("strava resource not found")
	default:
		fmt.Fprintf(&b, "strava api error %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Errors) > 0 {
		parts := make([]string, 0, len(e.Errors))
		for _, fe := range e.Errors {
			parts = append(parts, strings.Trim(fe.Resource+"."+fe.Field+" "+fe.Code, ". "))
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(")")
	}
	return b.String()
}

func (e *APIError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}

// StatusOf returns the HTTP status carried by an APIError in err's chain, or
// zero.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
