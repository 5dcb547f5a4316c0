package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
			return name
		}
		return f.Name
	})
	_ = v.RegisterValidation("trigger_source", func(fl validator.FieldLevel) bool {
		_, err := enums.ParseTriggerSource(fl.Field().String())
		return err == nil
	})
	return v
}

// Decode reads one JSON object into T, trims its string fields and runs the
// validate tags. Unknown fields, trailing data and bodies over 1 MiB are rejected.
func Decode[T any](r *http.Request) (T, error) {
	var dest T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes+1))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dest); err != nil {
		return dest, bodyError(err)
	}
	if dec.More() {
		return dest, pkgerrors.New(pkgerrors.CodeValidation, "request body must contain a single JSON object")
	}
	_, _ = io.Copy(io.Discard, r.Body)

	trimStrings(reflect.ValueOf(&dest).Elem())
	if err := validate.Struct(&dest); err != nil {
		return dest, fieldErrors(err)
	}
	return dest, nil
}

func bodyError(err error) error {
	msg := "invalid request body"
	if errors.Is(err, io.ErrUnexpectedEOF) {
		msg = "request body is truncated or too large"
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, msg).WithDetails(map[string]any{"error": err.Error()})
}

func trimStrings(v reflect.Value) {
	if v.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(strings.TrimSpace(field.String()))
		case reflect.Struct:
			trimStrings(field)
		}
	}
}

func fieldErrors(err error) error {
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(invalid))
	for _, fe := range invalid {
		details[fe.Field()] = describe(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "uuid":
		return "must be a UUID"
	case "trigger_source":
		return "is not a known trigger source"
	default:
		return "is invalid"
	}
}
