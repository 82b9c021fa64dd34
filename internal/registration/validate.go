package registration

import (
	"errors"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("label", validateLabel)
	return v
}()

// validateLabel rejects control characters and path separators.
func validateLabel(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if unicode.IsControl(r) || r == '/' || r == '\\' {
			return false
		}
	}
	return true
}

var reasons = map[string]string{
	"required": "is required",
	"min":      "is required",
	"max":      "is too long",
	"label":    "contains forbidden characters",
}

// validateRequest runs the struct tags of Request and converts the first
// failure into a *ValidationError.
func validateRequest(req *Request) error {
	req.Name = strings.TrimSpace(req.Name)

	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason, ok := reasons[fe.Tag()]
		if !ok {
			reason = "failed " + fe.Tag()
		}
		return &ValidationError{Field: strings.ToLower(fe.Field()), Reason: reason}
	}
	return &ValidationError{Field: "request", Reason: err.Error()}
}
