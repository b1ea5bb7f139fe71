package flow

// User-facing texts. All of them are plain text; only rendered lookups and
// /info use MarkdownV2.
const (
	msgOnboarding = "Welcome! This bot looks up phone numbers with your own lookup account.\n\n" +
		"/login - sign in with your phone number and an OTP\n" +
		"/installation_id - sign in with an existing installation id\n" +
		"/info - show your session\n" +
		"/logout - forget your credentials\n\n" +
		"Once logged in, send any phone number to look it up."

	msgAlreadyLoggedIn    = "You are already logged in. Use /logout first to switch accounts."
	msgAskInstallationID  = "Send your installation id."
	msgAskCountryCode     = "Send the two-letter country code of the account, for example US."
	msgLoggedIn           = "You are logged in. Send a phone number to look it up."
	msgLoggedOut          = "You are logged out."
	msgAskPhoneNumber     = "Send your phone number in international format, for example +14155552671."
	msgBadPhoneFormat     = "The phone number must start with + followed by the country code, for example +14155552671."
	msgOTPRateLimited     = "Too many OTP requests. Please try again later."
	msgLoginFailed        = "The OTP could not be sent. Please try again later."
	msgAskOTP             = "Send the OTP you received."
	msgSuspended          = "This account is suspended by the lookup provider."
	msgInvalidOTP         = "Invalid OTP. Please try again."
	msgOTPRetriesExceeded = "Too many invalid attempts. Use /login to request a new OTP."
	msgVerifyFailed       = "The OTP could not be verified. Please try again."
	msgLoginFirst         = "Please /login first."
	msgAccountError       = "The lookup provider rejected your credentials. Use /logout and then /login again."
	msgNoResults          = "No results found."
	msgUnhandled          = "Unknown command. Use /start to see what this bot can do."
	msgInternalError      = "Something went wrong."
	msgIncidentReported   = "The incident was reported."
)
