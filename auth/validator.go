package auth

import (
	"fmt"
	"strings"

	"groupchat/domain"
	"groupchat/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type RegisterRequest struct {
	Username string `validate:"required,alphanum,min=3,max=32"`
	Password string `validate:"required,min=8,max=72"`
}

type groupNameRequest struct {
	Name string `validate:"required,max=100"`
}

func ValidateRegister(req RegisterRequest) error {
	if err := validate.Struct(req); err != nil {
		var vErrs validator.ValidationErrors
		if ok := asValidationErrors(err, &vErrs); ok {
			for _, fe := range vErrs {
				if fe.Field() == "Username" {
					return fmt.Errorf("%w: %v", errors.ErrInvalidUsername, fe)
				}
			}
		}
		return fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}
	return nil
}

// ValidateGroupName trims the name and checks it is non-empty and bounded.
func ValidateGroupName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := validate.Struct(groupNameRequest{Name: trimmed}); err != nil {
		return "", fmt.Errorf("%w: must be 1 to %d characters", errors.ErrInvalidGroupName, domain.MaxGroupNameLength)
	}
	return trimmed, nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	vErrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = vErrs
	}
	return ok
}
