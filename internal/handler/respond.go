package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/eventhub/internal/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names in validation messages.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation, apperr.KindBusinessRule:
		return http.StatusBadRequest
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error body. Internal failures are reported
// without detail and logged here unless they were logged where they arose.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(apperr.KindOf(err))
	if status == http.StatusInternalServerError && !apperr.IsLogged(err) {
		logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeMessage(w, status, apperr.Message(err))
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation(fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}

// decodeJSON reads a JSON body into v and runs struct validation.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("invalid JSON")
	}
	if err := validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("invalid request")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return apperr.Validation(fmt.Sprintf("%s is required", fe.Field()))
	case "min", "gte", "gt":
		return apperr.Validation(fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
	case "max", "lte":
		return apperr.Validation(fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
	case "email":
		return apperr.Validation(fmt.Sprintf("%s must be a valid email address", fe.Field()))
	case "url":
		return apperr.Validation(fmt.Sprintf("%s must be a valid URL", fe.Field()))
	}
	return apperr.Validation(fmt.Sprintf("%s is invalid", fe.Field()))
}
