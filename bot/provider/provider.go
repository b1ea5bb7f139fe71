// Package provider talks to the phone-lookup service: onboarding (login by
// phone number, OTP verification) and number search.
package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/m3rciful/callerbot/core/netutil"
)

// Auth is the onboarding side of the provider.
type Auth interface {
	Login(ctx context.Context, phoneNumber string) (LoginResult, error)
	VerifyOTP(ctx context.Context, req VerifyRequest) (VerifyResult, error)
}

// Lookup resolves phone numbers for an authenticated installation.
type Lookup interface {
	Search(ctx context.Context, q SearchQuery) (SearchResult, error)
}

// Login status codes returned in the response body.
const (
	LoginStatusSent        = 1
	LoginStatusAlreadySent = 9
	LoginStatusTooMany     = 5
	LoginStatusRateLimited = 6
)

// Verification status codes returned in the response body.
const (
	VerifyStatusVerified        = 2
	VerifyStatusRetriesExceeded = 7
	VerifyStatusInvalidOTP      = 11
)

// Search error codes that mean the installation must log in again.
const (
	CodeInstallationInvalid = 40101
	CodeAccountRestricted   = 42601
)

// LoginResult is the decoded answer of the send-OTP call.
type LoginResult struct {
	Status            int    `json:"status"`
	Message           string `json:"message"`
	RequestID         string `json:"requestId"`
	Method            string `json:"method"`
	TokenTTL          int    `json:"tokenTtl"`
	ParsedPhoneNumber int64  `json:"parsedPhoneNumber"`
	ParsedCountryCode string `json:"parsedCountryCode"`

	// Filled locally from the parsed input number.
	DialingCode    int    `json:"-"`
	NationalNumber string `json:"-"`
	Region         string `json:"-"`
}

// RateLimited reports whether the provider refused to send another OTP for now.
func (r LoginResult) RateLimited() bool {
	return r.Status == LoginStatusTooMany || r.Status == LoginStatusRateLimited
}

// Accepted reports whether an OTP is on its way.
func (r LoginResult) Accepted() bool {
	return r.Status == LoginStatusSent || r.Status == LoginStatusAlreadySent
}

// CountryCode prefers the provider's parsed country and falls back to the local parse.
func (r LoginResult) CountryCode() string {
	if cc := strings.TrimSpace(r.ParsedCountryCode); cc != "" {
		return cc
	}
	return r.Region
}

// VerifyRequest carries the challenge issued by Login plus the user's OTP.
type VerifyRequest struct {
	PhoneNumber    string
	RequestID      string
	CountryCode    string
	DialingCode    int
	NationalNumber string
	OTP            string
}

// VerifyResult is the decoded answer of the OTP verification call.
type VerifyResult struct {
	Status         int    `json:"status"`
	Message        string `json:"message"`
	InstallationID string `json:"installationId"`
	TTL            int    `json:"ttl"`
	UserID         int64  `json:"userId"`
	Suspended      bool   `json:"suspended"`
}

// InvalidOTP reports a wrong code.
func (r VerifyResult) InvalidOTP() bool { return r.Status == VerifyStatusInvalidOTP }

// RetriesExceeded reports that the challenge can no longer be used.
func (r VerifyResult) RetriesExceeded() bool { return r.Status == VerifyStatusRetriesExceeded }

// SearchQuery identifies a number and the credentials to look it up with.
type SearchQuery struct {
	Number         string
	CountryCode    string
	InstallationID string
}

// SearchResult is the decoded search response.
type SearchResult struct {
	Data []Profile `json:"data"`
}

// First returns the best match, if any.
func (r SearchResult) First() (Profile, bool) {
	if len(r.Data) == 0 {
		return Profile{}, false
	}
	return r.Data[0], true
}

// Profile is one search hit.
type Profile struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Gender            string            `json:"gender"`
	Phones            []Phone           `json:"phones"`
	Addresses         []Address         `json:"addresses"`
	InternetAddresses []InternetAddress `json:"internetAddresses"`
}

// Phone is a phone entry of a Profile.
type Phone struct {
	E164Format     string `json:"e164Format"`
	NationalFormat string `json:"nationalFormat"`
	NumberType     string `json:"numberType"`
	Carrier        string `json:"carrier"`
	CountryCode    string `json:"countryCode"`
	DialingCode    int    `json:"dialingCode"`
}

// Address is an address entry of a Profile.
type Address struct {
	Address     string `json:"address"`
	Street      string `json:"street"`
	ZipCode     string `json:"zipCode"`
	City        string `json:"city"`
	CountryCode string `json:"countryCode"`
	TimeZone    string `json:"timeZone"`
}

// InternetAddress is an email or social handle.
type InternetAddress struct {
	ID      string `json:"id"`
	Service string `json:"service"`
	Caption string `json:"caption"`
}

// Options configures both clients.
type Options struct {
	AuthURL   string
	SearchURL string
	Timeout   time.Duration
	UserAgent string
	App       AppInfo
	Language  string
	// HTTPClient overrides the default client. Provider calls are single-shot:
	// the default client never retries.
	HTTPClient *http.Client
}

// AppInfo describes the client app announced during onboarding.
type AppInfo struct {
	Major int
	Minor int
	Build int
	Store string
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return netutil.BuildHTTPClient(netutil.ClientOptions{Timeout: o.Timeout})
}

func (o Options) userAgent() string {
	if ua := strings.TrimSpace(o.UserAgent); ua != "" {
		return ua
	}
	return "callerbot/1.0"
}
