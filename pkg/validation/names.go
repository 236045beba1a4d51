// Package validation checks operator-supplied names and request payloads
// before they reach the tunnel supervisor or the device registry.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"safenet/internal/keys"
)

var (
	ErrInvalidDeviceName = errors.New("invalid device name")
	ErrInvalidTunnelName = errors.New("invalid tunnel name")
)

var (
	deviceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,20}$`)
	tunnelNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,32}$`)
)

// DeviceName accepts 3 to 20 letters, digits, dashes or underscores.
func DeviceName(name string) error {
	if !deviceNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must be 3-20 characters of letters, digits, '-' or '_'", ErrInvalidDeviceName, name)
	}
	return nil
}

// TunnelName accepts 1 to 32 letters, digits, dashes or underscores. The
// tunnel name becomes both a file name and a service name, so the charset
// is narrower than what the service manager itself would take.
func TunnelName(name string) error {
	if !tunnelNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must be 1-32 characters of letters, digits, '-' or '_'", ErrInvalidTunnelName, name)
	}
	return nil
}

// Validator wraps validator.Validate with the safenet tags registered:
// device_name, tunnel_name and wgkey.
type Validator struct {
	validate *validator.Validate
}

// New builds a Validator.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := Register(v); err != nil {
		// Registration only fails on an empty tag or nil func.
		panic(err)
	}
	return &Validator{validate: v}
}

// Register adds the safenet tags to an existing validator, such as the one
// behind gin's binding engine.
func Register(v *validator.Validate) error {
	if err := v.RegisterValidation("device_name", func(fl validator.FieldLevel) bool {
		return DeviceName(fl.Field().String()) == nil
	}); err != nil {
		return err
	}
	if err := v.RegisterValidation("tunnel_name", func(fl validator.FieldLevel) bool {
		return TunnelName(fl.Field().String()) == nil
	}); err != nil {
		return err
	}
	return v.RegisterValidation("wgkey", func(fl validator.FieldLevel) bool {
		_, err := keys.ParsePublic(fl.Field().String())
		return err == nil
	})
}

// Struct validates s and flattens any field errors into one readable error.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return &Error{Fields: msgs}
}

// Error lists every field that failed validation.
type Error struct {
	Fields []string
}

func (e *Error) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Namespace())
	case "device_name":
		return fmt.Sprintf("%s must be 3-20 characters of letters, digits, '-' or '_'", fe.Namespace())
	case "tunnel_name":
		return fmt.Sprintf("%s must be 1-32 characters of letters, digits, '-' or '_'", fe.Namespace())
	case "wgkey":
		return fmt.Sprintf("%s must be a base64 wireguard key", fe.Namespace())
	default:
		return fmt.Sprintf("%s failed %q (%v)", fe.Namespace(), fe.Tag(), fe.Param())
	}
}
