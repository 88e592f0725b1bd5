package service

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/leadrelay/keygate/internal/model"
	"github.com/leadrelay/keygate/internal/permission"
)

// Rate limit bounds, in requests per hour.
const (
	MinRateLimit     = 10
	MaxRateLimit     = 10000
	DefaultRateLimit = 1000
)

const (
	nameMinLength = 1
	nameMaxLength = 100
)

// ErrValidation marks input rejected by validation. The wrapped
// validation.Errors carries per-field messages.
var ErrValidation = errors.New("validation failed")

// CreateKeyInput is the payload for issuing a key. AccountID and CreatedBy
// come from the caller's session, never from the request body.
type CreateKeyInput struct {
	AccountID   int64      `json:"-"`
	CreatedBy   int64      `json:"-"`
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	RateLimit   int        `json:"rate_limit"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// withDefaults fills the permission set and rate limit when omitted.
func (in CreateKeyInput) withDefaults() CreateKeyInput {
	if in.Permissions == nil {
		in.Permissions = append([]string{}, permission.Defaults...)
	}
	if in.RateLimit == 0 {
		in.RateLimit = DefaultRateLimit
	}
	return in
}

// Validate checks the input against the rules for a new key.
func (in CreateKeyInput) Validate(now time.Time) error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Name, NameRules()...),
		validation.Field(&in.Permissions, PermissionRules()...),
		validation.Field(&in.RateLimit, RateLimitRules()...),
		validation.Field(&in.ExpiresAt, ExpiresAtRules(now)...),
	)
	return wrapValidation(err)
}

// ValidateUpdate checks the non-nil fields of a partial update.
func ValidateUpdate(u model.KeyUpdate, now time.Time) error {
	if u.Empty() {
		return wrapValidation(validation.Errors{"body": errors.New("no fields to update")})
	}
	err := validation.ValidateStruct(&u,
		validation.Field(&u.Name, validation.When(u.Name != nil, NameRules()...)),
		validation.Field(&u.Permissions, validation.By(func(value interface{}) error {
			p, _ := value.(*[]string)
			if p == nil {
				return nil
			}
			return validation.Validate(*p, PermissionRules()...)
		})),
		validation.Field(&u.RateLimit, validation.When(u.RateLimit != nil, RateLimitRules()...)),
		validation.Field(&u.ExpiresAt, ExpiresAtRules(now)...),
	)
	return wrapValidation(err)
}

func wrapValidation(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

func NameRules() []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.Length(nameMinLength, nameMaxLength),
	}
}

func PermissionRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("at least one permission is required"),
		validation.Each(validation.By(func(value interface{}) error {
			p, _ := value.(string)
			if !permission.Grantable(p) {
				return validation.NewError("validation_invalid_permission", fmt.Sprintf("unknown permission %q", p))
			}
			return nil
		})),
	}
}

func RateLimitRules() []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.Min(MinRateLimit),
		validation.Max(MaxRateLimit),
	}
}

func ExpiresAtRules(now time.Time) []validation.Rule {
	return []validation.Rule{
		validation.By(func(value interface{}) error {
			t, _ := value.(*time.Time)
			if t == nil {
				return nil
			}
			if !t.After(now) {
				return validation.NewError("validation_expires_past", "expiration date must be in the future")
			}
			return nil
		}),
	}
}
