package middleware

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var hexAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// SetupValidator configures the binding validator with JSON field names in
// error messages and the custom rules used by request DTOs. Safe to call
// more than once.
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	// Use JSON tag names for field names in errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})

	// hexaddr matches a 20-byte 0x-prefixed hex address
	_ = v.RegisterValidation("hexaddr", func(fl validator.FieldLevel) bool {
		return hexAddressPattern.MatchString(fl.Field().String())
	})
}
