package handler

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"schoolreg/internal/auth"
	"schoolreg/internal/students"
)

var registerOnce sync.Once

// registerValidators adds the custom rules to gin's validator and makes
// field errors report the request field name instead of the Go field name.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"form", "json"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		_ = v.RegisterValidation("ngphone", func(fl validator.FieldLevel) bool {
			return students.ValidPhone(fl.Field().String())
		})
		_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
			return auth.StrongPassword(fl.Field().String())
		})
	})
}

const passwordRule = "Password must be at least 8 characters with uppercase, lowercase, and number"

var userFieldMessages = map[string]string{
	"username":        "Username must be at least 3 characters",
	"password":        passwordRule,
	"newPassword":     passwordRule,
	"currentPassword": "Current password is required",
	"role":            "Role must be admin or staff",
}

// fieldErrors maps validation failures to client messages keyed by field name.
// It returns nil when err is not a validation failure.
func fieldErrors(err error, messages map[string]string) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if msg, ok := messages[name]; ok {
			out[name] = msg
			continue
		}
		out[name] = name + " is invalid"
	}
	return out
}
