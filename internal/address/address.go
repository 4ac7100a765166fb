package address

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("address not found")

	phonePattern   = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	pincodePattern = regexp.MustCompile(`^[1-9][0-9]{5}$`)
)

// Address is a delivery target. Orders copy it, they never reference it.
type Address struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Line1     string    `json:"line1"`
	Line2     string    `json:"line2,omitempty"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	Pincode   string    `json:"pincode"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Normalize trims whitespace from every text field.
func (a Address) Normalize() Address {
	a.Name = strings.TrimSpace(a.Name)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Line1 = strings.TrimSpace(a.Line1)
	a.Line2 = strings.TrimSpace(a.Line2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.Pincode = strings.TrimSpace(a.Pincode)
	return a
}

func (a Address) Validate() error {
	switch {
	case a.Name == "":
		return &ValidationError{Field: "name", Reason: "required"}
	case !phonePattern.MatchString(a.Phone):
		return &ValidationError{Field: "phone", Reason: "must be a 10-digit mobile number"}
	case a.Line1 == "":
		return &ValidationError{Field: "line1", Reason: "required"}
	case a.City == "":
		return &ValidationError{Field: "city", Reason: "required"}
	case !IsKnownState(a.State):
		return &ValidationError{Field: "state", Reason: "unknown state"}
	case !pincodePattern.MatchString(a.Pincode):
		return &ValidationError{Field: "pincode", Reason: "must be 6 digits"}
	}
	return nil
}
