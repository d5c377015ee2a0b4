package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Kind classifies a failed backend response.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindBadRequest      Kind = "bad_request"
	KindServer          Kind = "server"
	KindOther           Kind = "other"
)

const (
	MessageForbidden  = "Forbidden. You do not have permission to access this resource."
	MessageNotFound   = "Resource not found."
	MessageBadRequest = "Bad request."
	MessageServer     = "Internal server error. Please try again later."
)

var ErrUnsupportedMethod = errors.New("method cannot be forwarded")

// translationAssets are fetched by the UI shell and never normalized.
const translationAssets = "/assets/i18n/"

// StatusError is a non-2xx backend response.
type StatusError struct {
	Status  int
	Kind    Kind
	Message string
	// ServerMessage is the message the backend put in the body, if any.
	ServerMessage string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend responded %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

func KindOf(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return KindUnauthenticated
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusInternalServerError:
		return KindServer
	}
	return KindOther
}

// NormalizeError turns a failed response into a *StatusError with a
// user-facing message. It reads, but does not close, resp.Body.
//
// 401 responses keep the server's wording since the session layer deals with
// them; translation-asset requests are reported as-is.
func NormalizeError(req *http.Request, resp *http.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	serverMsg := serverMessage(raw)

	se := &StatusError{
		Status:        resp.StatusCode,
		Kind:          KindOf(resp.StatusCode),
		ServerMessage: serverMsg,
	}

	if req != nil && strings.Contains(req.URL.Path, translationAssets) {
		se.Message = resp.Status
		return se
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		se.Message = serverMsg
		if se.Message == "" {
			se.Message = http.StatusText(http.StatusUnauthorized)
		}
	case http.StatusForbidden:
		se.Message = MessageForbidden
	case http.StatusNotFound:
		se.Message = MessageNotFound
	case http.StatusBadRequest:
		se.Message = serverMsg
		if se.Message == "" {
			se.Message = MessageBadRequest
		}
	case http.StatusInternalServerError:
		se.Message = MessageServer
	default:
		se.Message = fmt.Sprintf("Error: %d", resp.StatusCode)
	}
	return se
}

// serverMessage finds a human message in the common backend error shapes:
// {"message":…}, {"error":"…"}, {"error":{"message":…}} and RFC 7807 "title".
func serverMessage(raw []byte) string {
	var body struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
		Title   string          `json:"title"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &body) != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	if len(body.Error) > 0 {
		var s string
		if json.Unmarshal(body.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return body.Title
}
