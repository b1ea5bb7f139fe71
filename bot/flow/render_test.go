package flow

import (
	"strings"
	"testing"

	"github.com/m3rciful/callerbot/bot/provider"
)

func TestRenderProfile(t *testing.T) {
	p := provider.Profile{
		ID:     "p-1",
		Name:   "Jane Doe",
		Gender: "FEMALE",
		Phones: []provider.Phone{
			{E164Format: "+14155552671", NationalFormat: "(415) 555-2671", NumberType: "MOBILE", Carrier: "T-Mobile", CountryCode: "US"},
			{E164Format: "+10000000000"},
		},
		Addresses: []provider.Address{
			{Address: "1 Main St", City: "San Francisco", TimeZone: "-08:00"},
		},
		InternetAddresses: []provider.InternetAddress{
			{ID: "@jane", Service: "twitter"},
			{ID: "jane@example.com", Service: "email"},
		},
	}

	want := strings.Join([]string{
		`*Name:* Jane Doe`,
		`*Gender:* FEMALE`,
		`*Number:* \+14155552671`,
		`*National format:* \(415\) 555\-2671`,
		`*Number type:* MOBILE`,
		`*Carrier:* T\-Mobile`,
		`*Country:* US`,
		`*City:* San Francisco`,
		`*Address:* 1 Main St`,
		`*Time zone:* \-08:00`,
		`*Email:* jane@example\.com`,
		`*Id:* p\-1`,
	}, "\n")
	if got := RenderProfile(p); got != want {
		t.Fatalf("RenderProfile mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestRenderProfileMissingNestedFields(t *testing.T) {
	got := RenderProfile(provider.Profile{Name: "Bob"})
	lines := strings.Split(got, "\n")
	if len(lines) != 12 {
		t.Fatalf("expected 12 lines, got %d: %q", len(lines), got)
	}
	if lines[0] != "*Name:* Bob" || lines[2] != "*Number:* " || lines[8] != "*Address:* " {
		t.Fatalf("unexpected rendering %q", got)
	}
}

func TestRenderProfileComposesStreetAddress(t *testing.T) {
	got := RenderProfile(provider.Profile{Addresses: []provider.Address{{Street: "Main St", ZipCode: "94105", CountryCode: "US"}}})
	if !strings.Contains(got, "*Address:* Main St, 94105") || !strings.Contains(got, "*Country:* US") {
		t.Fatalf("unexpected rendering %q", got)
	}
}
