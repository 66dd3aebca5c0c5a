package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"hdnotes-server/internal/logging"
	"hdnotes-server/internal/service"
	"hdnotes-server/pkg/response"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// validationMessage turns the first failed rule into a client message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required", "required_without":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "Invalid email format"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// writeError maps a service error onto the envelope. Internal causes are
// logged, never sent.
func writeError(w http.ResponseWriter, r *http.Request, log logging.Logger, err error) {
	var svcErr *service.Error
	msg := "Internal server error"
	if errors.As(err, &svcErr) && svcErr.Message != "" {
		msg = svcErr.Message
	}

	switch service.KindOf(err) {
	case service.KindInvalidInput:
		response.BadRequest(w, msg)
	case service.KindConflict:
		response.Conflict(w, msg)
	case service.KindNotFound:
		response.NotFound(w, msg)
	case service.KindUnauthorized:
		response.Unauthorized(w, msg)
	case service.KindForbidden:
		response.Forbidden(w, msg)
	default:
		log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.InternalError(w, msg)
	}
}
