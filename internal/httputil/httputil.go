package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/manzil-bh/manzil-backend/internal/db"
	"github.com/manzil-bh/manzil-backend/internal/listing"
	"github.com/manzil-bh/manzil-backend/internal/logging"
	"gorm.io/gorm"
)

// ErrForbidden is returned when the caller is authenticated but asks for
// another firm's data through an explicit path parameter.
var ErrForbidden = errors.New("forbidden")

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// Fail maps err onto the response: validation problems are 400, missing
// or foreign rows are 404, ErrForbidden is 403, anything else is logged and
// reported as 500.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	var ve *listing.ValidationError
	switch {
	case errors.As(err, &ve):
		WriteError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, db.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		WriteError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, ErrForbidden):
		WriteError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to write
	default:
		logging.FromContext(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, logging.Err(err))
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// DecodeJSON reads a JSON body, rejecting unknown fields and trailing data.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &listing.ValidationError{Msg: "invalid JSON body: " + err.Error()}
	}
	if dec.More() {
		return &listing.ValidationError{Msg: "invalid JSON body: trailing data"}
	}
	return nil
}

// ServerTiming appends one Server-Timing metric, e.g. ("db", 12ms).
func ServerTiming(w http.ResponseWriter, kv ...Timing) {
	if len(kv) == 0 {
		return
	}
	parts := make([]string, 0, len(kv))
	for _, t := range kv {
		parts = append(parts, fmt.Sprintf("%s;dur=%.1f", t.Name, float64(t.Dur.Microseconds())/1000))
	}
	w.Header().Add("Server-Timing", strings.Join(parts, ", "))
}

type Timing struct {
	Name string
	Dur  time.Duration
}
