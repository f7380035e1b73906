package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/LiteObject/github-traffic-monitor/pkg/logger"
)

type ErrorLevel int

const (
	LevelFatal ErrorLevel = iota + 1
	LevelError
	LevelWarning
	LevelInfo
)

func (l ErrorLevel) String() string {
	return [...]string{"", "Fatal", "Error", "Warning", "Info"}[l]
}

// ApplicationError carries a stable reference code alongside the
// human-readable title/detail pair, so diagnostics can name the exact
// failure point (repository, endpoint, status) without losing the cause.
type ApplicationError struct {
	Reference  string
	Title      string
	Detail     string
	RootCause  error
	Level      ErrorLevel
	OccurredAt time.Time
}

func (e *ApplicationError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s][%s] %s", e.OccurredAt.Format(time.RFC3339), e.Reference, e.Title)

	if e.Detail != "" {
		fmt.Fprintf(&b, " - %s", e.Detail)
	}

	if e.RootCause != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.RootCause)
	}

	return b.String()
}

func (e *ApplicationError) Unwrap() error {
	return e.RootCause
}

func New(ref, title, detail string, cause error, level ErrorLevel) *ApplicationError {
	return &ApplicationError{
		Reference:  ref,
		Title:      title,
		Detail:     detail,
		RootCause:  cause,
		Level:      level,
		OccurredAt: time.Now().UTC(),
	}
}

type HTTPErrorResponse struct {
	Status    int       `json:"status"`
	ErrorRef  string    `json:"error_reference,omitempty"`
	Title     string    `json:"title"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func WriteHTTPError(w http.ResponseWriter, err error) {
	var appErr *ApplicationError

	resp := HTTPErrorResponse{
		Status:    http.StatusInternalServerError,
		Title:     "An unexpected error occurred",
		Timestamp: time.Now().UTC(),
	}

	if errors.As(err, &appErr) {
		resp.ErrorRef = appErr.Reference
		resp.Title = appErr.Title
		resp.Detail = appErr.Detail

		switch appErr.Level {
		case LevelFatal, LevelError:
			resp.Status = http.StatusInternalServerError
		case LevelWarning:
			resp.Status = http.StatusConflict
		case LevelInfo:
			resp.Status = http.StatusNotFound
		}
	} else {
		resp.Detail = err.Error()
	}

	logger.Error("%v", err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	json.NewEncoder(w).Encode(resp)
}
