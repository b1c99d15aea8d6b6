package config

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/c360/semflow/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their JSON path.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// FieldError is one failed validation rule.
type FieldError struct {
	Field   string
	Message string
}

// ValidationErrors lists every failed rule.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Validate checks struct tags and cross-field rules. The returned error is
// classified invalid and unwraps to ValidationErrors.
func (c *Config) Validate() error {
	var out ValidationErrors

	if err := structValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !stderrors.As(err, &verrs) {
			return errors.WrapInvalid(err, "Config", "Validate", "struct validation")
		}
		for _, fe := range verrs {
			out = append(out, FieldError{Field: fieldPath(fe), Message: errorMessage(fe)})
		}
	}

	if c.Storage.Mode == StorageModeKV && len(c.NATS.URLs) == 0 {
		out = append(out, FieldError{Field: "nats.urls", Message: "required when storage.mode is kv"})
	}

	if len(out) > 0 {
		return errors.WrapInvalid(out, "Config", "Validate", "validate configuration")
	}
	return nil
}

// fieldPath drops the root struct name: "Config.server.addr" becomes
// "server.addr".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "url":
		return "must be a valid URL"
	case "hostname_port":
		return "must be host:port"
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
