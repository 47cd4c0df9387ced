package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/user/quill-go/apperror"
)

// genericServerMessage replaces the message of anything that is not an AppError.
const genericServerMessage = "Something went wrong."

// MessageResponse is the body of confirmation-style responses.
type MessageResponse struct {
	Message string `json:"message" example:"New user ann@x.com registered."`
}

// WriteJSON serializes data to JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Avoid writing "null" when no body is intended.
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("Failed to encode response")
	}
}

// WriteError converts any error into a standardized `apperror.ErrorResponse`.
// Server-side failures are logged with their cause; the cause is never written to the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperror.FromError(err)
	if !ok {
		appErr = apperror.NewInternalError(genericServerMessage, err)
	}

	logger := LoggerFromContext(r.Context()).WithFields(logrus.Fields{
		"status":     appErr.StatusCode(),
		"error_type": appErr.Type.String(),
	})
	if appErr.IsServerError() {
		logger.WithError(appErr).Error("Request failed")
	} else {
		logger.WithError(appErr).Debug("Request rejected")
	}

	WriteJSON(w, appErr.StatusCode(), appErr.ToResponse())
}

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// DecodeJSON decodes the request body into dst. Malformed JSON is a BadRequestError.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.NewPayloadTooLargeError("Request body too large.", err)
		}
		if errors.Is(err, io.EOF) {
			// An empty body decodes to the zero value; field validation reports what is missing.
			return nil
		}
		return apperror.NewBadRequestError("Invalid request body.", err)
	}
	return nil
}
