package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/m3rciful/callerbot/core/netutil"

	"github.com/slack-go/slack"
	tele "gopkg.in/telebot.v4"
)

// StatusError is a non-2xx answer from a plain HTTP endpoint such as the
// analytics collector.
type StatusError struct {
	Service string
	Code    int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Service, e.Code)
}

// failure is what the dispatcher learns from a failed attempt.
type failure struct {
	kind   string
	status int
	// code is the API's own error name, e.g. Slack's channel_not_found.
	code  string
	retry bool
	// wait is a delay requested by the server; zero means use the backoff.
	wait time.Duration
}

func describe(err error) failure {
	if err == nil {
		return failure{}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failure{kind: "timeout"}
	}
	if errors.Is(err, context.Canceled) {
		return failure{kind: "canceled"}
	}

	// Rate limits first: both libraries also report them as generic errors.
	var slackLimit *slack.RateLimitedError
	if errors.As(err, &slackLimit) {
		return failure{kind: "rate_limited", status: http.StatusTooManyRequests, retry: true, wait: slackLimit.RetryAfter}
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return failure{kind: "rate_limited", status: http.StatusTooManyRequests, retry: true, wait: time.Duration(flood.RetryAfter) * time.Second}
	}

	var slackResp slack.SlackErrorResponse
	if errors.As(err, &slackResp) {
		return failure{kind: "slack_api", code: slackResp.Err}
	}
	var slackStatus slack.StatusCodeError
	if errors.As(err, &slackStatus) {
		return failure{kind: statusKind(slackStatus.Code), status: slackStatus.Code, retry: slackStatus.Retryable()}
	}
	var plain *StatusError
	if errors.As(err, &plain) {
		retry := plain.Code >= http.StatusInternalServerError || plain.Code == http.StatusTooManyRequests
		return failure{kind: statusKind(plain.Code), status: plain.Code, retry: retry}
	}

	// Telegram may have applied a request it answered with an error, so those
	// are never repeated.
	var group tele.GroupError
	if errors.As(err, &group) {
		return failure{kind: "http_4xx", status: http.StatusBadRequest}
	}
	var tgErr *tele.Error
	if errors.As(err, &tgErr) {
		return failure{kind: statusKind(tgErr.Code), status: tgErr.Code}
	}

	return failure{kind: networkKind(err), retry: netutil.ShouldRetry(err)}
}

func statusKind(code int) string {
	switch {
	case code == http.StatusTooManyRequests:
		return "rate_limited"
	case code >= 500:
		return "http_5xx"
	case code >= 400:
		return "http_4xx"
	}
	return "unknown"
}

func networkKind(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "dial"
	}
	var alert tls.AlertError
	var verify *tls.CertificateVerificationError
	if errors.As(err, &alert) || errors.As(err, &verify) {
		return "tls"
	}
	if opErr != nil {
		return "network"
	}
	return "unknown"
}

var secrets = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`), "bot<redacted>"},
	{regexp.MustCompile(`xox[abposr]-[A-Za-z0-9-]+`), "xox<redacted>"},
	{regexp.MustCompile(`(hooks\.slack\.com/services/)[A-Za-z0-9/]+`), "${1}<redacted>"},
	{regexp.MustCompile(`([?&](?:token|key|api_key|access_token)=)[^&\s"]+`), "${1}<redacted>"},
}

// redact renders err with bot tokens, Slack credentials and URL secrets masked.
func redact(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, s := range secrets {
		msg = s.re.ReplaceAllString(msg, s.repl)
	}
	return msg
}
