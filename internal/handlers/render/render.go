package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/authservice/internal/apperrors"
)

const (
	ValidationErrorType = "validation_failed"
	DecodingErrorType   = "decoding_failed"
	ServiceErrorType    = "service_error"
)

// Auth requests are tiny, anything bigger is refused
const maxBodyBytes = 64 << 10

var validate = newValidator()

type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Status and client message for every application error a handler may return
// Order matters: the first match wins
var serviceErrors = []struct {
	err     error
	code    int
	message string
}{
	{apperrors.ErrUserAlreadyExists, http.StatusConflict, "User already exists"},
	{apperrors.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid username or password"},
	{apperrors.ErrTokenExpired, http.StatusUnauthorized, "Token expired"},
	{apperrors.ErrInvalidToken, http.StatusUnauthorized, "Invalid token"},
	{apperrors.ErrInvalidRefreshToken, http.StatusUnauthorized, "Invalid refresh token"},
	{apperrors.ErrUserNotFound, http.StatusNotFound, "User not found"},
	{apperrors.ErrWeakCredential, http.StatusBadRequest, ""},
	{apperrors.ErrInvalidInput, http.StatusBadRequest, ""},
}

func JSON(w http.ResponseWriter, data any) {
	JSONWithStatus(w, data, http.StatusOK)
}

// Encode data before writing headers, so a failed encoding still ends as 500
func JSONWithStatus(w http.ResponseWriter, data any, code int) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}

func ServiceError(w http.ResponseWriter, message string, code int) {
	JSONWithStatus(w, ErrorResponse{Error: ServiceErrorType, Message: message}, code)
}

// Render application error with its status code
// Returns false if the error is unexpected: it is rendered as 500 and has to be logged by the caller
func Error(w http.ResponseWriter, err error) bool {
	for _, e := range serviceErrors {
		if !errors.Is(err, e.err) {
			continue
		}

		message := e.message
		if message == "" {
			// Input errors explain what is wrong with the request
			message = err.Error()
		}
		ServiceError(w, message, e.code)
		return true
	}

	ServiceError(w, "Internal server error", http.StatusInternalServerError)
	return false
}

func DecodeError(w http.ResponseWriter, err error) {
	code := http.StatusBadRequest
	var message string

	var (
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
		tooLargeErr *http.MaxBytesError
	)
	switch {
	case errors.Is(err, io.EOF):
		message = "Request body is empty"
	case errors.As(err, &syntaxErr):
		message = fmt.Sprintf("Malformed JSON at position %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		message = fmt.Sprintf("Invalid data type for field '%s'", typeErr.Field)
	case errors.As(err, &tooLargeErr):
		code = http.StatusRequestEntityTooLarge
		message = fmt.Sprintf("Request body is too large (maximum %d bytes)", tooLargeErr.Limit)
	default:
		message = fmt.Sprintf("Failed to parse JSON: %s", err.Error())
	}

	JSONWithStatus(w, ErrorResponse{Error: DecodingErrorType, Message: message}, code)
}

func ValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	response := ErrorResponse{
		Error:   ValidationErrorType,
		Message: "Request validation failed",
		Fields:  make(map[string]string, len(errs)),
	}

	for _, fe := range errs {
		response.Fields[fe.Field()] = fieldMessage(fe)
	}

	JSONWithStatus(w, response, http.StatusBadRequest)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return fmt.Sprintf("Value is too short (minimum %s)", fe.Param())
	case "max":
		return fmt.Sprintf("Value is too long (maximum %s)", fe.Param())
	case "email":
		return "Invalid email address"
	default:
		return "Invalid value"
	}
}

// Decode JSON body into T and validate it by struct tags
// On failure the error response is written already and the caller only has to return
func BindAndValidate[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var value T

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		DecodeError(w, err)
		return value, err
	}

	if err := validate.Struct(value); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			ValidationErrors(w, errs)
		} else {
			ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return value, err
	}

	return value, nil
}
