package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

var (
	policyTypes = []string{
		"CappedEnrollmentLearnerCreditAccessPolicy",
		"PerLearnerEnrollmentCapLearnerCreditAccessPolicy",
		"PerLearnerSpendCapLearnerCreditAccessPolicy",
		"AssignedLearnerCreditAccessPolicy",
	}
	accessMethods = []string{"direct", "assigned"}
)

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("schema"), ",", 2)[0]
		}
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	// Content keys look like "edX+DemoX" or "course-v1:edX+DemoX+1T2024".
	validate.RegisterValidation("content_key", func(fl validator.FieldLevel) bool {
		key := fl.Field().String()
		return key != "" && !strings.ContainsAny(key, " \t\r\n/?#")
	})

	validate.RegisterValidation("policy_type", func(fl validator.FieldLevel) bool {
		return oneOf(fl.Field().String(), policyTypes)
	})

	validate.RegisterValidation("access_method", func(fl validator.FieldLevel) bool {
		return oneOf(fl.Field().String(), accessMethods)
	})
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	errors := make(map[string]string)
	for _, err := range validationErrors {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "gt":
			errors[field] = "Value must be greater than " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "uuid", "uuid4":
			errors[field] = "Must be a valid UUID"
		case "content_key":
			errors[field] = "Invalid content key"
		case "policy_type":
			errors[field] = "Invalid policy type. Must be one of: " + strings.Join(policyTypes, ", ")
		case "access_method":
			errors[field] = "Invalid access method. Must be: direct or assigned"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
