package earthengine

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNoCredentials is returned by every remote call when no service-account key
	// was configured.
	ErrNoCredentials = errors.New("earth engine credentials not configured: set GEE_SA_KEY or GEE_SA_KEY_PATH")

	// ErrNoProject is returned when neither the configuration nor the key names a
	// Cloud project.
	ErrNoProject = errors.New("earth engine project not configured: set GEE_PROJECT_ID")
)

// APIError is an error response from the Earth Engine REST API. The backend
// message is kept verbatim.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       int    `json:"code"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("earth engine %s (%d): %s", e.Status, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("earth engine error (%d): %s", e.HTTPStatus, e.Message)
}

// IsAuth reports whether the error is an authentication or permission failure.
func (e *APIError) IsAuth() bool {
	return e.HTTPStatus == 401 || e.HTTPStatus == 403
}

// parseAPIError decodes a Google API error envelope, falling back to the raw body.
func parseAPIError(status int, body []byte) error {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		envelope.Error.HTTPStatus = status
		return envelope.Error
	}
	msg := string(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return &APIError{HTTPStatus: status, Code: status, Message: msg}
}
