package middleware

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/taskdesk-api/internal/model"
)

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var errorMessages = map[string]string{
	"required":        "is required",
	"max":             "is too long",
	"role":            "must be a known role",
	"permission_type": "must be a known permission type",
	"scope":           "must be a known scope",
	"task_status":     "must be todo, doing or done",
	"uuid":            "must be a UUID",
}

// RegisterValidators installs the vocabulary tags on gin's validator and
// reports fields by their json names.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return fld.Name
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	tags := map[string]validator.Func{
		"role": func(fl validator.FieldLevel) bool {
			return model.Role(fl.Field().String()).Valid()
		},
		"permission_type": func(fl validator.FieldLevel) bool {
			return model.PermissionType(fl.Field().String()).Valid()
		},
		"scope": func(fl validator.FieldLevel) bool {
			return model.Scope(fl.Field().String()).Valid()
		},
		"task_status": func(fl validator.FieldLevel) bool {
			return model.TaskStatus(fl.Field().String()).Valid()
		},
	}
	for tag, fn := range tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

// ValidationErrors flattens a binding error into per-field messages. Errors
// that are not validator errors (malformed JSON, bad UUIDs) yield nil.
func ValidationErrors(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]ValidationError, 0, len(verrs))
	for _, e := range verrs {
		msg, ok := errorMessages[e.Tag()]
		if !ok {
			msg = "failed " + e.Tag() + " validation"
		}
		out = append(out, ValidationError{Field: e.Field(), Message: msg})
	}
	return out
}

// DescribeBindError renders a binding failure as one client-facing line.
func DescribeBindError(err error) string {
	fields := ValidationErrors(err)
	if len(fields) == 0 {
		return "invalid request body"
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Field + " " + f.Message
	}
	return strings.Join(parts, "; ")
}
