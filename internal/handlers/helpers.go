package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
)

const maxBodyBytes = 4 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		WriteJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed", Kind: "method_not_allowed"})
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
}

// StatusForKind maps an error kind to its HTTP status.
func StatusForKind(kind interfaces.ErrorKind) int {
	switch kind {
	case interfaces.KindNotFound:
		return http.StatusNotFound
	case interfaces.KindInvalidStateTransition, interfaces.KindResourceConflict:
		return http.StatusConflict
	case interfaces.KindConfiguration:
		return http.StatusUnprocessableEntity
	case interfaces.KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err with the status derived from its kind.
func WriteError(w http.ResponseWriter, err error) error {
	kind := interfaces.KindOf(err)
	return WriteJSON(w, StatusForKind(kind), ErrorResponse{Error: err.Error(), Kind: string(kind)})
}

// WriteBadRequest writes a 400 for malformed or invalid input.
func WriteBadRequest(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Kind: "invalid_request"})
}

// DecodeJSON decodes the request body into dst and validates its struct tags.
// An empty body leaves dst at its zero value before validation.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		WriteBadRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}

	if err := validate.Struct(dst); err != nil {
		WriteBadRequest(w, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// QueryInt reads an integer query parameter, returning def when it is absent
// or malformed.
func QueryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
