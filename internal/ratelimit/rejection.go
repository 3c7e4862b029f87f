package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Rejection response texts. Clients parse this body, so field names and
// values are fixed.
const (
	RejectionError   = "Too many requests"
	RejectionMessage = "Rate limit exceeded. Please try again later."
)

// RejectionBody is the JSON body of a 429 response.
type RejectionBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter string `json:"retryAfter"`
}

// Rejection is the response sent for a denied request.
type Rejection struct {
	Status            int
	RetryAfterSeconds int64
	Body              RejectionBody
}

// RetryAfterSeconds converts d to whole seconds, rounding up. Negative
// durations give 0.
func RetryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}

// BuildRejection builds the response for a denied decision.
func BuildRejection(d Decision) Rejection {
	seconds := RetryAfterSeconds(d.RetryAfter)
	return Rejection{
		Status:            http.StatusTooManyRequests,
		RetryAfterSeconds: seconds,
		Body: RejectionBody{
			Error:      RejectionError,
			Message:    RejectionMessage,
			RetryAfter: strconv.FormatInt(seconds, 10) + " seconds",
		},
	}
}

// WriteRejection writes the 429 response for d.
func WriteRejection(w http.ResponseWriter, d Decision) error {
	rejection := BuildRejection(d)

	body, err := json.Marshal(rejection.Body)
	if err != nil {
		return err
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Retry-After", strconv.FormatInt(rejection.RetryAfterSeconds, 10))
	w.WriteHeader(rejection.Status)
	_, err = w.Write(body)
	return err
}
