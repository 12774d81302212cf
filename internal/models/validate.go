package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"storefront/internal/apperr"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/google/uuid"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their wire names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// Validate checks a write intent before any attempt is made. Failures are ClientInput.
func (p *ProductPayload) Validate() error {
	const op = "ProductPayload.Validate"

	if p == nil {
		return apperr.New(apperr.ClientInput, op, "missing product data")
	}
	if p.ID != "" {
		if _, err := uuid.Parse(p.ID); err != nil {
			return apperr.New(apperr.ClientInput, op, fmt.Sprintf("invalid product id %q", p.ID))
		}
	}

	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return apperr.New(apperr.ClientInput, op, describe(fieldErrs[0]))
	}
	return apperr.Wrap(apperr.ClientInput, op, "invalid product data", err)
}

func describe(fe validator.FieldError) string {
	// namespace is "ProductPayload.inventory[0].stock"; drop the type name
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "notblank":
		switch fe.Field() {
		case "name":
			return "product name is required"
		case "size":
			return "inventory size is required"
		}
		return field + " is required"
	case "gte":
		if fe.Field() == "price_cents" {
			return "price must not be negative"
		}
		return field + " must not be negative"
	case "max":
		return fmt.Sprintf("%s longer than %s characters", field, fe.Param())
	case "unique":
		return "duplicate inventory size"
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}
