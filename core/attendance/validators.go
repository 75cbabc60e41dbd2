package attendance

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core"
)

var (
	statusTag = "attendancestatus"

	errInvalidStatus   = errors.New("status must be one of present, absent or excused")
	errInvalidDecision = errors.New("review status must be approved or rejected")
	errDateRequired    = errors.New("date is required")
)

// InitValidators registers the attendance validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterValidator(validate, translator, statusTag, statusValidation, errInvalidStatus.Error())
}

func statusValidation(fl validator.FieldLevel) bool {
	status, ok := fl.Field().Interface().(Status)
	return ok && status.Valid()
}
