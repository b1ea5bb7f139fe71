// Package session holds the per-chat authentication record and its storage drivers.
//
// A Session pairs a chat id with exactly one State. Each State variant carries
// only the payload that is valid for it, so a logged-in session always has both
// credentials and an OTP-pending session always has the phone number and the
// provider challenge.
package session

import "fmt"

// Status is the storage discriminant of a State.
type Status string

// Known session statuses, as persisted.
const (
	StatusLoggedOut              Status = "logged_out"
	StatusAwaitingPhoneNo        Status = "awaiting_phone_no"
	StatusAwaitingOTP            Status = "awaiting_otp"
	StatusAwaitingInstallationID Status = "awaiting_installation_id"
	StatusAwaitingCountryCode    Status = "awaiting_country_code"
	StatusLoggedIn               Status = "logged_in"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusLoggedOut, StatusAwaitingPhoneNo, StatusAwaitingOTP,
		StatusAwaitingInstallationID, StatusAwaitingCountryCode, StatusLoggedIn:
		return true
	}
	return false
}

// State is implemented only by the variants declared in this package.
type State interface {
	Status() Status
	isState()
}

// Challenge is the opaque login token issued by the auth provider. It is kept
// verbatim until the OTP is verified.
type Challenge struct {
	RequestID      string `json:"requestId"`
	CountryCode    string `json:"countryCode"`
	DialingCode    int    `json:"dialingCode"`
	NationalNumber string `json:"nationalNumber"`
}

// Complete reports whether the challenge can be used for OTP verification.
func (c Challenge) Complete() bool {
	return c.RequestID != "" && c.CountryCode != ""
}

type (
	// LoggedOut is the default state of an unknown chat.
	LoggedOut struct{}
	// AwaitingPhoneNo waits for an international phone number.
	AwaitingPhoneNo struct{}
	// AwaitingOTP waits for the one-time password sent to PhoneNumber.
	AwaitingOTP struct {
		PhoneNumber string
		Challenge   Challenge
	}
	// AwaitingInstallationID waits for a pasted installation id.
	AwaitingInstallationID struct{}
	// AwaitingCountryCode waits for the country code that pairs with InstallationID.
	AwaitingCountryCode struct {
		InstallationID string
	}
	// LoggedIn holds the credentials required for lookups.
	LoggedIn struct {
		InstallationID string
		CountryCode    string
	}
)

func (LoggedOut) Status() Status              { return StatusLoggedOut }
func (AwaitingPhoneNo) Status() Status        { return StatusAwaitingPhoneNo }
func (AwaitingOTP) Status() Status            { return StatusAwaitingOTP }
func (AwaitingInstallationID) Status() Status { return StatusAwaitingInstallationID }
func (AwaitingCountryCode) Status() Status    { return StatusAwaitingCountryCode }
func (LoggedIn) Status() Status               { return StatusLoggedIn }

func (LoggedOut) isState()              {}
func (AwaitingPhoneNo) isState()        {}
func (AwaitingOTP) isState()            {}
func (AwaitingInstallationID) isState() {}
func (AwaitingCountryCode) isState()    {}
func (LoggedIn) isState()               {}

// Session is the persisted record for one chat.
type Session struct {
	ChatID int64
	State  State
}

// New returns the default session for chatID.
func New(chatID int64) Session {
	return Session{ChatID: chatID, State: LoggedOut{}}
}

// Status returns the discriminant of the current state, treating a nil state as logged out.
func (s Session) Status() Status {
	if s.State == nil {
		return StatusLoggedOut
	}
	return s.State.Status()
}

// With returns a copy of s moved to next.
func (s Session) With(next State) Session {
	return Session{ChatID: s.ChatID, State: next}
}

// Credentials returns the lookup credentials when the session is logged in.
func (s Session) Credentials() (LoggedIn, bool) {
	li, ok := s.State.(LoggedIn)
	return li, ok
}

// Validate checks that the variant payload is fully populated.
func (s Session) Validate() error {
	switch st := s.State.(type) {
	case nil, LoggedOut, AwaitingPhoneNo, AwaitingInstallationID:
		return nil
	case AwaitingOTP:
		if st.PhoneNumber == "" || !st.Challenge.Complete() {
			return fmt.Errorf("%w: awaiting_otp requires phone number and challenge", ErrInvalidRecord)
		}
	case AwaitingCountryCode:
		if st.InstallationID == "" {
			return fmt.Errorf("%w: awaiting_country_code requires installation id", ErrInvalidRecord)
		}
	case LoggedIn:
		if st.InstallationID == "" || st.CountryCode == "" {
			return fmt.Errorf("%w: logged_in requires installation id and country code", ErrInvalidRecord)
		}
	default:
		return fmt.Errorf("%w: unknown state %T", ErrInvalidRecord, s.State)
	}
	return nil
}
