package auth

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fastygo/passwordless/domain"
)

var inputValidator = validator.New()

// LinkRequest is the input of every link-issuing entry point.
type LinkRequest struct {
	Email string `validate:"required,email,max=254"`
	Name  string `validate:"max=120"`
}

func (r *LinkRequest) normalize() {
	r.Email = domain.NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
}

func (r *LinkRequest) validate() error {
	err := inputValidator.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() == "Name" {
				return domain.NewError(domain.ErrCodeInvalid, "name must be at most 120 characters")
			}
		}
	}
	return domain.ErrInvalidEmail
}
