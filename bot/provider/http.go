package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m3rciful/callerbot/core/logger"
)

const maxResponseBody = 1 << 20

// call performs one request and returns the raw response body. Non-2xx
// responses are turned into *Error with the provider's code and message when
// the body carries them.
func call(ctx context.Context, c *http.Client, op, method, rawURL string, params url.Values, header http.Header, payload any) ([]byte, int, error) {
	ex := Exchange{Method: method, URL: rawURL, Params: params}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, &Error{Op: op, Exchange: ex, Err: fmt.Errorf("encode request: %w", err)}
		}
		ex.RequestBody = string(raw)
		body = bytes.NewReader(raw)
	}

	target := rawURL
	if len(params) > 0 {
		target = rawURL + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, 0, &Error{Op: op, Exchange: ex, Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}

	start := time.Now()
	resp, err := c.Do(req)
	if err != nil {
		logger.Warn(ctx, "provider", "call.fail",
			slog.String("action", op),
			slog.String("endpoint", rawURL),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("error", err.Error()),
		)
		return nil, 0, &Error{Op: op, Exchange: ex, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	ex.ResponseStatus = resp.StatusCode
	ex.ResponseBody = string(raw)
	if err != nil {
		return nil, resp.StatusCode, &Error{Op: op, HTTPStatus: resp.StatusCode, Exchange: ex, Err: fmt.Errorf("read response: %w", err)}
	}

	logger.Debug(ctx, "provider", "call.done",
		slog.String("action", op),
		slog.String("endpoint", rawURL),
		slog.Int("http_code", resp.StatusCode),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := &Error{Op: op, HTTPStatus: resp.StatusCode, Exchange: ex}
		var envelope struct {
			Code    int    `json:"code"`
			Status  int    `json:"status"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &envelope) == nil {
			perr.Code = envelope.Code
			if perr.Code == 0 {
				perr.Code = envelope.Status
			}
			perr.Message = envelope.Message
		}
		return nil, resp.StatusCode, perr
	}
	return raw, resp.StatusCode, nil
}

func decode(op string, raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Op: op, Exchange: Exchange{ResponseBody: string(raw)}, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
