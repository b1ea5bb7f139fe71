package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestOptions(url string) Options {
	return Options{
		AuthURL:   url,
		SearchURL: url,
		Timeout:   2 * time.Second,
		App:       AppInfo{Major: 11, Minor: 75, Build: 5, Store: "GOOGLE_PLAY"},
	}
}

func TestLoginSendsParsedNumber(t *testing.T) {
	var got loginPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != sendOTPPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		_, _ = io.WriteString(w, `{"status":1,"message":"Sent","requestId":"req-1","parsedCountryCode":"GB","parsedPhoneNumber":447911123456}`)
	}))
	defer srv.Close()

	c := NewAuthClient(newTestOptions(srv.URL))
	c.deviceID = func() string { return "device" }

	res, err := c.Login(context.Background(), "+447911123456")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !res.Accepted() || res.RateLimited() {
		t.Fatalf("status classification wrong: %+v", res)
	}
	if res.RequestID != "req-1" || res.CountryCode() != "GB" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.DialingCode != 44 || res.NationalNumber != "7911123456" {
		t.Fatalf("local parse not attached: %+v", res)
	}
	if got.DialingCode != 44 || got.PhoneNumber != "7911123456" || got.CountryCode != "GB" {
		t.Fatalf("payload = %+v", got)
	}
	if got.InstallationDetails.Device.DeviceID != "device" || got.InstallationDetails.App.MajorVersion != 11 {
		t.Fatalf("installation details = %+v", got.InstallationDetails)
	}
}

func TestLoginRejectsUnparseableNumber(t *testing.T) {
	c := NewAuthClient(newTestOptions("http://127.0.0.1:1"))
	_, err := c.Login(context.Background(), "+")
	if !errors.Is(err, ErrInvalidNumber) {
		t.Fatalf("expected ErrInvalidNumber, got %v", err)
	}
}

func TestLoginRateLimitedStatus(t *testing.T) {
	for _, status := range []int{LoginStatusTooMany, LoginStatusRateLimited} {
		r := LoginResult{Status: status}
		if !r.RateLimited() || r.Accepted() {
			t.Fatalf("status %d misclassified", status)
		}
	}
	if (LoginResult{Status: 3}).Accepted() {
		t.Fatal("status 3 must not be accepted")
	}
}

func TestLoginCountryFallsBackToLocalRegion(t *testing.T) {
	r := LoginResult{Region: "US"}
	if r.CountryCode() != "US" {
		t.Fatalf("CountryCode = %q", r.CountryCode())
	}
}

func TestVerifyOTP(t *testing.T) {
	var got verifyPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != verifyOTPPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"status":2,"message":"Verified","installationId":"ABC123","ttl":259200,"userId":7,"suspended":false}`)
	}))
	defer srv.Close()

	c := NewAuthClient(newTestOptions(srv.URL))
	res, err := c.VerifyOTP(context.Background(), VerifyRequest{
		PhoneNumber:    "+447911123456",
		RequestID:      "req-1",
		CountryCode:    "GB",
		DialingCode:    44,
		NationalNumber: "7911123456",
		OTP:            " 123456 ",
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.InstallationID != "ABC123" || res.InvalidOTP() || res.RetriesExceeded() {
		t.Fatalf("unexpected result %+v", res)
	}
	if got.Token != "123456" || got.RequestID != "req-1" || got.PhoneNumber != "7911123456" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestVerifyOTPReparsesIncompleteChallenge(t *testing.T) {
	var got verifyPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"status":11,"message":"Invalid token"}`)
	}))
	defer srv.Close()

	c := NewAuthClient(newTestOptions(srv.URL))
	res, err := c.VerifyOTP(context.Background(), VerifyRequest{PhoneNumber: "+447911123456", RequestID: "r", OTP: "1"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.InvalidOTP() {
		t.Fatalf("expected invalid otp, got %+v", res)
	}
	if got.DialingCode != 44 || got.PhoneNumber != "7911123456" || got.CountryCode != "GB" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != searchPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("q") != "7911123456" || q.Get("countryCode") != "GB" || q.Get("type") != "4" {
			t.Errorf("unexpected query %v", q)
		}
		if r.Header.Get("Authorization") != "Bearer ABC123" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		_, _ = io.WriteString(w, `{"data":[{"id":"p1","name":"Jane","gender":"FEMALE","phones":[{"e164Format":"+447911123456","carrier":"EE"}],"addresses":[{"city":"London","countryCode":"GB"}]}]}`)
	}))
	defer srv.Close()

	c := NewSearchClient(newTestOptions(srv.URL))
	res, err := c.Search(context.Background(), SearchQuery{Number: "7911123456", CountryCode: "GB", InstallationID: "ABC123"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	p, ok := res.First()
	if !ok || p.Name != "Jane" || p.Phones[0].Carrier != "EE" || p.Addresses[0].City != "London" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSearchAccountErrors(t *testing.T) {
	for _, code := range []int{CodeInstallationInvalid, CodeAccountRestricted} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": "Unauthorized"})
		}))
		c := NewSearchClient(newTestOptions(srv.URL))
		_, err := c.Search(context.Background(), SearchQuery{Number: "1", CountryCode: "US", InstallationID: "x"})
		srv.Close()

		if !IsAccountError(err) {
			t.Fatalf("code %d: expected account error, got %v", code, err)
		}
		var pe *Error
		if !errors.As(err, &pe) || pe.HTTPStatus != http.StatusUnauthorized || pe.Message != "Unauthorized" {
			t.Fatalf("code %d: unexpected error %#v", code, err)
		}
		if pe.Exchange.Params.Get("q") != "1" || pe.Exchange.ResponseStatus != http.StatusUnauthorized {
			t.Fatalf("exchange not captured: %+v", pe.Exchange)
		}
	}
}

func TestSearchOtherFailureIsNotAccountError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"code":50000,"message":"boom"}`)
	}))
	defer srv.Close()

	c := NewSearchClient(newTestOptions(srv.URL))
	_, err := c.Search(context.Background(), SearchQuery{Number: "1", CountryCode: "US", InstallationID: "x"})
	if err == nil || IsAccountError(err) {
		t.Fatalf("expected fatal provider error, got %v", err)
	}
}

func TestSearchRequiresCredentials(t *testing.T) {
	c := NewSearchClient(newTestOptions("http://127.0.0.1:1"))
	_, err := c.Search(context.Background(), SearchQuery{Number: "1"})
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestSearchTransportErrorWraps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewSearchClient(newTestOptions(url))
	_, err := c.Search(context.Background(), SearchQuery{Number: "1", CountryCode: "US", InstallationID: "x"})
	var pe *Error
	if !errors.As(err, &pe) || pe.Err == nil || pe.Op != "search" {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}

func TestParseNumberUsesMainCountryOfDialingCode(t *testing.T) {
	cases := []struct {
		in      string
		region  string
		dialing int
	}{
		{"+447911123456", "GB", 44},
		{" +14155552671 ", "US", 1},
		{"+33612345678", "FR", 33},
	}
	for _, tc := range cases {
		pn, err := parseNumber(tc.in)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if pn.region != tc.region || pn.dialing != tc.dialing {
			t.Errorf("%q: region=%s dialing=%d, want %s/%d", tc.in, pn.region, pn.dialing, tc.region, tc.dialing)
		}
	}
}

func TestLoginCountryWithoutProviderParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":1,"message":"Sent","requestId":"req-2"}`)
	}))
	defer srv.Close()

	res, err := NewAuthClient(newTestOptions(srv.URL)).Login(context.Background(), "+447911123456")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.CountryCode() != "GB" {
		t.Fatalf("CountryCode = %q", res.CountryCode())
	}
}
