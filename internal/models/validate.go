package models

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// Validate checks a record against its struct tags.
func Validate(record interface{}) error {
	return validate.Struct(record)
}
