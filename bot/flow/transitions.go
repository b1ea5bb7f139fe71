package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/m3rciful/callerbot/bot/provider"
	"github.com/m3rciful/callerbot/bot/session"
	"github.com/m3rciful/callerbot/core/logger"
)

func (e *Engine) command(sess session.Session, cmd Command) outcome {
	_, loggedIn := sess.Credentials()
	switch cmd {
	case CmdStart:
		out := outcome{reply: plain(msgOnboarding)}
		if sess.Status() == session.StatusLoggedOut {
			out.track = CmdStart
		}
		return out
	case CmdInfo:
		return outcome{reply: markdown(RenderInfo(sess))}
	case CmdInstallationID:
		if loggedIn {
			return outcome{reply: plain(msgAlreadyLoggedIn)}
		}
		return outcome{next: session.AwaitingInstallationID{}, reply: plain(msgAskInstallationID)}
	case CmdLogin:
		if loggedIn {
			return outcome{reply: plain(msgAlreadyLoggedIn)}
		}
		return outcome{next: session.AwaitingPhoneNo{}, reply: plain(msgAskPhoneNumber)}
	case CmdLogout:
		return outcome{delete: true, track: CmdLogout, reply: plain(msgLoggedOut)}
	}
	// /search and /stop have no branch of their own.
	return outcome{reply: plain(msgUnhandled)}
}

func (e *Engine) reply(ctx context.Context, sess session.Session, text string) (outcome, error) {
	switch st := sess.State.(type) {
	case session.AwaitingInstallationID:
		return outcome{
			next:  session.AwaitingCountryCode{InstallationID: text},
			track: CmdInstallationID,
			reply: plain(msgAskCountryCode),
		}, nil
	case session.AwaitingCountryCode:
		return outcome{
			next:  session.LoggedIn{InstallationID: st.InstallationID, CountryCode: text},
			reply: plain(msgLoggedIn),
		}, nil
	case session.AwaitingPhoneNo:
		return e.login(ctx, text)
	case session.AwaitingOTP:
		return e.verify(ctx, st, text)
	case session.LoggedIn:
		return e.search(ctx, st, text)
	}
	return outcome{reply: plain(msgLoginFirst)}, nil
}

func (e *Engine) login(ctx context.Context, phone string) (outcome, error) {
	if !strings.HasPrefix(phone, "+") {
		return outcome{reply: plain(msgBadPhoneFormat)}, nil
	}
	res, err := e.auth.Login(ctx, phone)
	if errors.Is(err, provider.ErrInvalidNumber) {
		return outcome{reply: plain(msgBadPhoneFormat)}, nil
	}
	if err != nil {
		return outcome{}, err
	}
	logger.Info(ctx, "flow", "login.response", slog.Int("provider_status", res.Status))

	switch {
	case res.RateLimited():
		return outcome{reply: plain(msgOTPRateLimited)}, nil
	case !res.Accepted():
		return outcome{reply: plain(orDefault(res.Message, msgLoginFailed))}, nil
	}
	return outcome{
		next: session.AwaitingOTP{
			PhoneNumber: phone,
			Challenge: session.Challenge{
				RequestID:      res.RequestID,
				CountryCode:    res.CountryCode(),
				DialingCode:    res.DialingCode,
				NationalNumber: res.NationalNumber,
			},
		},
		reply: plain(msgAskOTP),
	}, nil
}

func (e *Engine) verify(ctx context.Context, st session.AwaitingOTP, otp string) (outcome, error) {
	res, err := e.auth.VerifyOTP(ctx, provider.VerifyRequest{
		PhoneNumber:    st.PhoneNumber,
		RequestID:      st.Challenge.RequestID,
		CountryCode:    st.Challenge.CountryCode,
		DialingCode:    st.Challenge.DialingCode,
		NationalNumber: st.Challenge.NationalNumber,
		OTP:            otp,
	})
	if err != nil {
		return outcome{}, err
	}
	logger.Info(ctx, "flow", "verify.response",
		slog.Int("provider_status", res.Status),
		slog.Bool("suspended", res.Suspended),
	)

	switch {
	case res.Suspended:
		return outcome{reply: plain(msgSuspended)}, nil
	case res.InvalidOTP():
		return outcome{reply: plain(msgInvalidOTP)}, nil
	case res.RetriesExceeded():
		return outcome{reply: plain(msgOTPRetriesExceeded)}, nil
	case strings.TrimSpace(res.InstallationID) == "":
		return outcome{reply: plain(orDefault(res.Message, msgVerifyFailed))}, nil
	}
	return outcome{
		next: session.LoggedIn{
			InstallationID: res.InstallationID,
			CountryCode:    st.Challenge.CountryCode,
		},
		track: CmdLogin,
		reply: plain(msgLoggedIn),
	}, nil
}

func (e *Engine) search(ctx context.Context, creds session.LoggedIn, number string) (outcome, error) {
	res, err := e.lookup.Search(ctx, provider.SearchQuery{
		Number:         number,
		CountryCode:    creds.CountryCode,
		InstallationID: creds.InstallationID,
	})
	if provider.IsAccountError(err) {
		var pe *provider.Error
		errors.As(err, &pe)
		logger.Warn(ctx, "flow", "search.account_error", slog.Int("provider_code", pe.Code))
		return outcome{reply: plain(msgAccountError)}, nil
	}
	if err != nil {
		return outcome{}, err
	}
	profile, ok := res.First()
	if !ok {
		return outcome{track: CmdSearch, reply: plain(msgNoResults)}, nil
	}
	return outcome{track: CmdSearch, reply: markdown(RenderProfile(profile))}, nil
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
