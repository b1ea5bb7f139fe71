package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

const (
	sendOTPPath   = "/v2/sendOnboardingOtp"
	verifyOTPPath = "/v1/verifyOnboardingOtp"
)

// AuthClient implements Auth over the provider's onboarding API.
type AuthClient struct {
	http     *http.Client
	baseURL  string
	agent    string
	app      AppInfo
	language string
	deviceID func() string
}

// NewAuthClient returns a client for opts.AuthURL.
func NewAuthClient(opts Options) *AuthClient {
	lang := opts.Language
	if lang == "" {
		lang = "en"
	}
	return &AuthClient{
		http:     opts.httpClient(),
		baseURL:  opts.AuthURL,
		agent:    opts.userAgent(),
		app:      opts.App,
		language: lang,
		deviceID: newDeviceID,
	}
}

func newDeviceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

type loginPayload struct {
	CountryCode         string              `json:"countryCode"`
	DialingCode         int                 `json:"dialingCode"`
	InstallationDetails installationDetails `json:"installationDetails"`
	PhoneNumber         string              `json:"phoneNumber"`
	Region              string              `json:"region"`
	SequenceNo          int                 `json:"sequenceNo"`
}

type installationDetails struct {
	App      appDetails    `json:"app"`
	Device   deviceDetails `json:"device"`
	Language string        `json:"language"`
}

type appDetails struct {
	BuildVersion int    `json:"buildVersion"`
	MajorVersion int    `json:"majorVersion"`
	MinorVersion int    `json:"minorVersion"`
	Store        string `json:"store"`
}

type deviceDetails struct {
	DeviceID       string   `json:"deviceId"`
	Language       string   `json:"language"`
	Manufacturer   string   `json:"manufacturer"`
	Model          string   `json:"model"`
	OSName         string   `json:"osName"`
	OSVersion      string   `json:"osVersion"`
	MobileServices []string `json:"mobileServices"`
}

type verifyPayload struct {
	CountryCode string `json:"countryCode"`
	DialingCode int    `json:"dialingCode"`
	PhoneNumber string `json:"phoneNumber"`
	RequestID   string `json:"requestId"`
	Token       string `json:"token"`
}

// parsedNumber is the local parse of an international number.
type parsedNumber struct {
	region   string
	dialing  int
	national string
}

func parseNumber(raw string) (parsedNumber, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), "")
	if err != nil {
		return parsedNumber{}, fmt.Errorf("%w: %v", ErrInvalidNumber, err)
	}
	dialing := int(num.GetCountryCode())
	// The provider keys accounts by the main country of the dialing code, so
	// +44 7911 stays GB even though the range belongs to Guernsey. Only
	// non-geographic codes fall back to the number's own region.
	region := phonenumbers.GetRegionCodeForCountryCode(dialing)
	if !geographicRegion(region) {
		if own := phonenumbers.GetRegionCodeForNumber(num); geographicRegion(own) {
			region = own
		}
	}
	if region == "" {
		region = phonenumbers.UNKNOWN_REGION
	}
	return parsedNumber{
		region:   region,
		dialing:  dialing,
		national: phonenumbers.GetNationalSignificantNumber(num),
	}, nil
}

func geographicRegion(region string) bool {
	return region != "" && region != phonenumbers.UNKNOWN_REGION && region != phonenumbers.REGION_CODE_FOR_NON_GEO_ENTITY
}

// Login asks the provider to send an OTP to phoneNumber. A parse failure
// returns ErrInvalidNumber; provider refusals come back in the result status.
func (c *AuthClient) Login(ctx context.Context, phoneNumber string) (LoginResult, error) {
	pn, err := parseNumber(phoneNumber)
	if err != nil {
		return LoginResult{}, err
	}
	payload := loginPayload{
		CountryCode: pn.region,
		DialingCode: pn.dialing,
		InstallationDetails: installationDetails{
			App: appDetails{
				BuildVersion: c.app.Build,
				MajorVersion: c.app.Major,
				MinorVersion: c.app.Minor,
				Store:        c.app.Store,
			},
			Device: deviceDetails{
				DeviceID:       c.deviceID(),
				Language:       c.language,
				Manufacturer:   "Google",
				Model:          "Pixel",
				OSName:         "Android",
				OSVersion:      "10",
				MobileServices: []string{"GMS"},
			},
			Language: c.language,
		},
		PhoneNumber: pn.national,
		Region:      "region-2",
		SequenceNo:  2,
	}

	raw, _, err := call(ctx, c.http, "login", http.MethodPost, joinURL(c.baseURL, sendOTPPath), nil, c.header(), payload)
	if err != nil {
		return LoginResult{}, err
	}
	var res LoginResult
	if err := decode("login", raw, &res); err != nil {
		return LoginResult{}, err
	}
	res.DialingCode = pn.dialing
	res.NationalNumber = pn.national
	res.Region = pn.region
	return res, nil
}

// VerifyOTP submits the user's OTP for the challenge issued by Login.
func (c *AuthClient) VerifyOTP(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	payload := verifyPayload{
		CountryCode: req.CountryCode,
		DialingCode: req.DialingCode,
		PhoneNumber: req.NationalNumber,
		RequestID:   req.RequestID,
		Token:       strings.TrimSpace(req.OTP),
	}
	if payload.PhoneNumber == "" || payload.DialingCode == 0 {
		pn, err := parseNumber(req.PhoneNumber)
		if err != nil {
			return VerifyResult{}, err
		}
		payload.PhoneNumber = pn.national
		payload.DialingCode = pn.dialing
		if payload.CountryCode == "" {
			payload.CountryCode = pn.region
		}
	}

	raw, _, err := call(ctx, c.http, "verify_otp", http.MethodPost, joinURL(c.baseURL, verifyOTPPath), nil, c.header(), payload)
	if err != nil {
		return VerifyResult{}, err
	}
	var res VerifyResult
	if err := decode("verify_otp", raw, &res); err != nil {
		return VerifyResult{}, err
	}
	return res, nil
}

func (c *AuthClient) header() http.Header {
	h := http.Header{}
	h.Set("User-Agent", c.agent)
	h.Set("Accept-Encoding", "identity")
	return h
}
