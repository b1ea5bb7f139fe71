package provider

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidNumber is returned by Login when the number cannot be parsed.
var ErrInvalidNumber = errors.New("provider: invalid phone number")

// Exchange is the HTTP round trip attached to an Error for incident reports.
type Exchange struct {
	Method         string
	URL            string
	Params         url.Values
	RequestBody    string
	ResponseStatus int
	ResponseBody   string
}

// Error is a failed provider call. Code carries the provider's error code when
// the response had one; otherwise it is zero. Err holds a transport failure.
type Error struct {
	Op         string
	Code       int
	Message    string
	HTTPStatus int
	Exchange   Exchange
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("provider: ")
	b.WriteString(e.Op)
	if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, ": http %d", e.HTTPStatus)
	}
	if e.Code != 0 {
		fmt.Fprintf(&b, ": code %d", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage is the provider-supplied text that is safe to show in chat.
func (e *Error) UserMessage() string {
	return strings.TrimSpace(e.Message)
}

// IsAccountError reports whether err is a lookup failure the user can fix by
// logging in again.
func IsAccountError(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Code {
	case CodeInstallationInvalid, CodeAccountRestricted:
		return true
	}
	return false
}
