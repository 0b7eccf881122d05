package app

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	msgInvalidName     = "Nombre inválido"
	msgInvalidEmail    = "Email inválido"
	msgWeakPassword    = "Password débil"
	msgPasswordMissing = "Password requerido"
	msgInvalidRole     = "Rol inválido"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var fieldMessages = map[string]string{
	"required": "Campo requerido",
	"min":      "Debe tener al menos %s caracteres",
	"max":      "No puede superar %s caracteres",
	"oneof":    "Debe ser uno de: %s",
	"url":      "URL inválida",
}

func fieldMessage(e validator.FieldError) string {
	msg, ok := fieldMessages[e.Tag()]
	if !ok {
		return "Valor inválido"
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, e.Param())
	}
	return msg
}

// validateStruct runs struct tag validation and converts failures into a
// *ValidationError keyed by JSON field name.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, e := range verrs {
		out.add(e.Field(), fieldMessage(e))
	}
	return out
}
