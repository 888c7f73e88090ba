package core_test

import (
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/odontoweb/clinica/core"
)

func newValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate, translator
}

type specialtyForm struct {
	Specialty string `json:"specialty" validate:"omitempty,specialty"`
}

func TestInitValidators_specialty(t *testing.T) {
	validate, translator := newValidator()

	for _, val := range []string{"", "Ortodoncia", "Cirugía Oral", "Endodoncia 2"} {
		assert.NoError(t, validate.Struct(specialtyForm{Specialty: val}), val)
	}

	err := validate.Struct(specialtyForm{Specialty: "Endo*doncia"})
	if vErrs, ok := err.(validator.ValidationErrors); assert.True(t, ok) {
		// errors carry the JSON tag name and the custom translation
		assert.Equal(t, "specialty", vErrs[0].Field())
		assert.Equal(t, "only letters, digits and spaces are allowed", vErrs[0].Translate(translator))
	}
}

type passwordForm struct {
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func TestInitValidators_translations(t *testing.T) {
	validate, translator := newValidator()

	err := validate.Struct(passwordForm{})
	if vErrs, ok := err.(validator.ValidationErrors); assert.True(t, ok) {
		for _, vErr := range vErrs {
			assert.Equal(t, "this field is required", vErr.Translate(translator))
		}
	}

	err = validate.Struct(passwordForm{Password: "S3cure#pass1", PasswordConfirm: "S3cure#pass2"})
	if vErrs, ok := err.(validator.ValidationErrors); assert.True(t, ok) {
		assert.Equal(t, "password_confirm", vErrs[0].Field())
		assert.Equal(t, "passwords do not match", vErrs[0].Translate(translator))
	}
}
