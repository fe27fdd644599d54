package gateway

import (
	"errors"
	"net/http"

	"toolbridge/internal/modelclient"
	"toolbridge/internal/runloop"
	"toolbridge/internal/toolprovider"
)

const (
	errTypeInvalidRequest = "invalid_request_error"
	errTypeAuth           = "authentication_error"
	errTypeRateLimit      = "rate_limit_error"
	errTypeAPI            = "api_error"
)

type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// validationError carries the field-level code for a 400 response.
type validationError struct {
	code    string
	message string
}

func (e *validationError) Error() string {
	return e.message
}

func invalidRequest(code, message string) error {
	return &validationError{code: code, message: message}
}

func (s *server) writeError(w http.ResponseWriter, status int, kind, code, message string) {
	if s.production && status >= 500 {
		message = "Internal server error"
	}
	writeJSON(w, status, ErrorEnvelope{Error: ErrorBody{
		Message: message,
		Type:    kind,
		Code:    code,
	}})
}

// classify maps an error raised during request handling to the response
// taxonomy: validation 400, upstream auth 401, model outage 502, tool
// provider outage 500, everything else 500.
func classify(err error) (status int, kind, code string) {
	var verr *validationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errTypeInvalidRequest, verr.code
	case errors.Is(err, modelclient.ErrAuth):
		return http.StatusUnauthorized, errTypeAuth, "invalid_api_key"
	case errors.Is(err, modelclient.ErrUnavailable):
		return http.StatusBadGateway, errTypeAPI, "model_unavailable"
	case errors.Is(err, toolprovider.ErrProvider), errors.Is(err, runloop.ErrOrphanToolResult):
		return http.StatusInternalServerError, errTypeAPI, "tool_provider_error"
	default:
		return http.StatusInternalServerError, errTypeAPI, "internal_error"
	}
}
