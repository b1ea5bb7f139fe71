package session

import (
	"errors"
	"testing"
)

func TestMarshalRoundTripPreservesPayload(t *testing.T) {
	cases := []State{
		LoggedOut{},
		AwaitingPhoneNo{},
		AwaitingOTP{
			PhoneNumber: "+10005550006",
			Challenge:   Challenge{RequestID: "req-1", CountryCode: "US", DialingCode: 1, NationalNumber: "0005550006"},
		},
		AwaitingInstallationID{},
		AwaitingCountryCode{InstallationID: "inst-1"},
		LoggedIn{InstallationID: "inst-1", CountryCode: "IN"},
	}
	for _, st := range cases {
		t.Run(string(st.Status()), func(t *testing.T) {
			data, err := Marshal(Session{ChatID: 7, State: st})
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			got, err := Unmarshal(7, data)
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.ChatID != 7 {
				t.Fatalf("chat id = %d", got.ChatID)
			}
			if got.State != st {
				t.Fatalf("state = %#v, want %#v", got.State, st)
			}
		})
	}
}

func TestMarshalRejectsPartialRecords(t *testing.T) {
	cases := []State{
		AwaitingOTP{PhoneNumber: "+1"},
		AwaitingOTP{Challenge: Challenge{RequestID: "r", CountryCode: "US"}},
		AwaitingCountryCode{},
		LoggedIn{InstallationID: "only-id"},
		LoggedIn{CountryCode: "US"},
	}
	for _, st := range cases {
		if _, err := Marshal(Session{ChatID: 1, State: st}); !errors.Is(err, ErrInvalidRecord) {
			t.Fatalf("%#v: err = %v, want ErrInvalidRecord", st, err)
		}
	}
}

func TestUnmarshalRejectsInvalidRecords(t *testing.T) {
	cases := map[string]string{
		"logged in without country": `{"status":"logged_in","installationId":"x"}`,
		"otp without challenge":     `{"status":"awaiting_otp","phoneNumber":"+1"}`,
		"unknown status":            `{"status":"sleeping"}`,
		"garbage":                   `{`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Unmarshal(1, []byte(raw)); !errors.Is(err, ErrInvalidRecord) {
				t.Fatalf("err = %v, want ErrInvalidRecord", err)
			}
		})
	}
}

func TestUnmarshalDropsForeignFields(t *testing.T) {
	raw := `{"status":"awaiting_phone_no","installationId":"stale","countryCode":"US"}`
	s, err := Unmarshal(3, []byte(raw))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := s.State.(AwaitingPhoneNo); !ok {
		t.Fatalf("state = %#v", s.State)
	}
	if _, ok := s.Credentials(); ok {
		t.Fatal("credentials must only exist for logged_in")
	}
}

func TestSessionStatusDefaults(t *testing.T) {
	if got := (Session{ChatID: 1}).Status(); got != StatusLoggedOut {
		t.Fatalf("nil state status = %s", got)
	}
	if !StatusAwaitingCountryCode.Valid() || Status("nope").Valid() {
		t.Fatal("status validity mismatch")
	}
}
