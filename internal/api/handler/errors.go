package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/apierr"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 64 << 10

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	apierr.WriteError(w, err)
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return apierr.NewInvalidRequestError(message)
}

// decode reads a JSON body into v. An empty body leaves v untouched when
// optional is set.
func decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return false
	}
	return true
}
