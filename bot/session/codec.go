package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidRecord marks a persisted record that does not satisfy the variant invariants.
	ErrInvalidRecord = errors.New("session: invalid record")
	// ErrInvalidChatID is returned for the zero chat id.
	ErrInvalidChatID = errors.New("session: invalid chat id")
)

// record is the flat wire form shared by every driver.
type record struct {
	Status         Status     `json:"status"`
	PhoneNumber    string     `json:"phoneNumber,omitempty"`
	LoginChallenge *Challenge `json:"loginChallenge,omitempty"`
	InstallationID string     `json:"installationId,omitempty"`
	CountryCode    string     `json:"countryCode,omitempty"`
}

// Marshal encodes the session state. Invalid sessions are rejected so a
// partially populated record is never written.
func Marshal(s Session) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	rec := record{Status: s.Status()}
	switch st := s.State.(type) {
	case AwaitingOTP:
		ch := st.Challenge
		rec.PhoneNumber = st.PhoneNumber
		rec.LoginChallenge = &ch
	case AwaitingCountryCode:
		rec.InstallationID = st.InstallationID
	case LoggedIn:
		rec.InstallationID = st.InstallationID
		rec.CountryCode = st.CountryCode
	}
	return json.Marshal(rec)
}

// Unmarshal decodes a record produced by Marshal for chatID.
func Unmarshal(chatID int64, data []byte) (Session, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	var st State
	switch rec.Status {
	case StatusLoggedOut, "":
		st = LoggedOut{}
	case StatusAwaitingPhoneNo:
		st = AwaitingPhoneNo{}
	case StatusAwaitingOTP:
		if rec.LoginChallenge == nil {
			return Session{}, fmt.Errorf("%w: awaiting_otp without challenge", ErrInvalidRecord)
		}
		st = AwaitingOTP{PhoneNumber: rec.PhoneNumber, Challenge: *rec.LoginChallenge}
	case StatusAwaitingInstallationID:
		st = AwaitingInstallationID{}
	case StatusAwaitingCountryCode:
		st = AwaitingCountryCode{InstallationID: rec.InstallationID}
	case StatusLoggedIn:
		st = LoggedIn{InstallationID: rec.InstallationID, CountryCode: rec.CountryCode}
	default:
		return Session{}, fmt.Errorf("%w: unknown status %q", ErrInvalidRecord, rec.Status)
	}

	s := Session{ChatID: chatID, State: st}
	if err := s.Validate(); err != nil {
		return Session{}, err
	}
	return s, nil
}
