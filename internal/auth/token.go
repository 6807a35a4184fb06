package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	opCreateToken  = "token creation"
	opRefreshToken = "token refresh"
)

// CreateToken exchanges an authorization code for tokens. The response body is
// decoded into T; if T has a Validate() error method it is called and a failure
// is reported as *DecodeError.
//
// Transport failures are retried up to 3 attempts with a fixed 2s delay. Any
// HTTP response ends the loop: non-2xx yields *StatusError, an undecodable 2xx
// body yields *DecodeError, and exhausted retries yield *TransportError.
func CreateToken[T any](ctx context.Context, c *Client, req TokenExchangeRequest) (T, error) {
	c.log.Debug().
		Str("url", c.createTokenURL()).
		Str("code", req.Code).
		Str("code_verifier", req.CodeVerifier).
		Str("redirect_uri", req.RedirectURI).
		Msg("create token request")

	return postJSON[T](ctx, c, opCreateToken, c.createTokenURL(), req, nil)
}

// RefreshToken exchanges a refresh token for new tokens, with the same retry
// policy as CreateToken. A 401 response returns ErrRefreshTokenExpired.
func RefreshToken[T any](ctx context.Context, c *Client, refreshToken string) (T, error) {
	c.log.Debug().
		Str("url", c.refreshTokenURL()).
		Str("refresh_token", truncate(refreshToken, 20)+"...").
		Msg("refresh token request")

	return postJSON[T](ctx, c, opRefreshToken, c.refreshTokenURL(), refreshRequest{RefreshToken: refreshToken},
		func(status int) error {
			if status == http.StatusUnauthorized {
				return ErrRefreshTokenExpired
			}
			return nil
		})
}

// postJSON sends body to endpoint and decodes the response into T.
// classify may map a non-2xx status to a dedicated error; nil falls through to *StatusError.
func postJSON[T any](ctx context.Context, c *Client, op, endpoint string, body any, classify func(int) error) (T, error) {
	var zero T

	payload, err := json.Marshal(body)
	if err != nil {
		return zero, fmt.Errorf("encoding %s request: %w", op, err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			c.log.Warn().Str("op", op).Int("attempt", attempt).Msg("retrying after network error")
			if err := c.sleep(ctx, c.retryDelay); err != nil {
				return zero, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return zero, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			c.log.Warn().Str("op", op).Err(err).Msg("network error")
			lastErr = err
			continue
		}
		return decodeResponse[T](c, op, resp, classify)
	}

	return zero, &TransportError{Attempts: maxAttempts, Err: lastErr}
}

// decodeResponse ends the retry loop for any received response.
func decodeResponse[T any](c *Client, op string, resp *http.Response, classify func(int) error) (T, error) {
	var zero T
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("auth service %s read body failed: %w", op, err)
	}
	text := strings.ToValidUTF8(string(data), "�")

	c.log.Info().Str("op", op).Str("status", resp.Status).Msg("auth service response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Error().Str("op", op).Str("body", text).Msg("auth service returned an error status")
		if classify != nil {
			if err := classify(resp.StatusCode); err != nil {
				return zero, err
			}
		}
		return zero, &StatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       text,
		}
	}

	c.logBody(op, data)

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, &DecodeError{Op: op, Err: err}
	}
	if v, ok := any(&out).(validator); ok {
		if err := v.Validate(); err != nil {
			return zero, &DecodeError{Op: op, Err: err}
		}
	}
	return out, nil
}

// validator is implemented by response types that can tell a decoded but
// empty body from a real one.
type validator interface {
	Validate() error
}

// logBody prints the response pretty-printed when it is JSON, raw otherwise.
// It never affects the outcome of the call.
func (c *Client) logBody(op string, data []byte) {
	ev := c.log.Debug()
	if !ev.Enabled() {
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		ev.Str("op", op).Msg(string(data))
		return
	}
	ev.Str("op", op).Msg("response body\n" + pretty.String())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
