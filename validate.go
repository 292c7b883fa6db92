package nomadlabs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// requestValidator adapts validator/v10 to echo.Validator.
type requestValidator struct {
	v *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return Role(fl.Field().String()).Valid()
	})
	v.RegisterValidation("posttype", func(fl validator.FieldLevel) bool {
		return PostType(fl.Field().String()).Valid()
	})
	v.RegisterValidation("poststatus", func(fl validator.FieldLevel) bool {
		return PostStatus(fl.Field().String()).Valid()
	})
	v.RegisterValidation("reaction", func(fl validator.FieldLevel) bool {
		return ReactionType(fl.Field().String()).Valid()
	})
	v.RegisterValidation("tagtype", func(fl validator.FieldLevel) bool {
		return TagType(fl.Field().String()).Valid()
	})
	return &requestValidator{v: v}
}

// Validate returns ErrInvalidInput describing the first failing field.
func (rv *requestValidator) Validate(i any) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
		if fe.Param() != "" {
			return fmt.Errorf("%w: %s failed %s=%s", ErrInvalidInput, field, fe.Tag(), fe.Param())
		}
		return fmt.Errorf("%w: %s failed %s", ErrInvalidInput, field, fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

// bindAndValidate decodes the request body into req and validates it.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: malformed request body", ErrInvalidInput)
	}
	return c.Validate(req)
}
