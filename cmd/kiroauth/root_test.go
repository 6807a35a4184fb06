package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waabox/kiroauth/internal/auth"
	"github.com/waabox/kiroauth/internal/config"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"--config", filepath.Join(t.TempDir(), "config.toml")}, args...)
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitError, exitCode(errors.New("boom")))
	assert.Equal(t, exitReloginNeeded, exitCode(fmt.Errorf("wrapped: %w", auth.ErrRefreshTokenExpired)))
	assert.Equal(t, exitLoginFailed, exitCode(&loginFailedError{err: errors.New("denied")}))
}

func TestRefreshCommand_PrintsTokenJSON(t *testing.T) {
	service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/refreshToken", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"accessToken":  "new_access",
			"refreshToken": "new_refresh",
			"expiresIn":    3600,
		})
	}))
	defer service.Close()
	t.Setenv("KIROAUTH_ENDPOINT", service.URL)

	code, stdout, stderr := runCLI(t, "refresh", "old_refresh")
	require.Equal(t, exitOK, code, stderr)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "new_access", out["accessToken"])
	assert.Equal(t, "new_refresh", out["refreshToken"])
	assert.NotEmpty(t, out["expiresAt"])
}

func TestRefreshCommand_ExpiredTokenExitsWithReloginCode(t *testing.T) {
	service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer service.Close()
	t.Setenv("KIROAUTH_ENDPOINT", service.URL)

	code, stdout, stderr := runCLI(t, "refresh", "expired")
	assert.Equal(t, exitReloginNeeded, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "kiroauth login")
}

func TestRefreshCommand_RequiresToken(t *testing.T) {
	code, _, stderr := runCLI(t, "refresh")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "refresh token required")
}

func TestReadRefreshToken(t *testing.T) {
	tok, err := readRefreshToken(nil, true, strings.NewReader("  from-stdin \n"))
	require.NoError(t, err)
	assert.Equal(t, "from-stdin", tok)

	tok, err = readRefreshToken([]string{"from-arg"}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-arg", tok)

	_, err = readRefreshToken([]string{"x"}, true, strings.NewReader("y"))
	assert.Error(t, err)

	_, err = readRefreshToken(nil, true, strings.NewReader(""))
	assert.Error(t, err)
}

func TestInvalidEndpointAbortsCommand(t *testing.T) {
	t.Setenv("KIROAUTH_ENDPOINT", "not a url")
	code, _, stderr := runCLI(t, "refresh", "token")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "config")
}

func TestConfigInit_WritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiroauth", "config.toml")
	var stdout, stderr bytes.Buffer

	code := run([]string{"--config", path, "config", "init"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	cfg, err := config.LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, "Google", cfg.Provider)

	code = run([]string{"--config", path, "config", "init"}, &stdout, &stderr)
	assert.Equal(t, exitError, code, "existing config must not be overwritten without --force")

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestConfigInit_ForceReplacesInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`provider = "Okta"`+"\n"), 0o600))
	_, err := config.LoadFrom(path)
	require.Error(t, err)

	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", path, "config", "init", "--force"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	cfg, err := config.LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "Google", cfg.Provider)
}

func TestRefreshCommand_RejectsResponseWithoutAccessToken(t *testing.T) {
	for _, body := range []string{`{}`, `null`} {
		t.Run(body, func(t *testing.T) {
			service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer service.Close()
			t.Setenv("KIROAUTH_ENDPOINT", service.URL)

			code, stdout, stderr := runCLI(t, "refresh", "token")
			assert.Equal(t, exitError, code)
			assert.Empty(t, stdout)
			assert.Contains(t, stderr, "missing accessToken")
		})
	}
}

func TestVersionCommand(t *testing.T) {
	code, stdout, _ := runCLI(t, "version", "--short")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "kiroauth version dev\n", stdout)
}

func TestWriteToken_AddsExpiry(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	require.NoError(t, writeToken(&buf, "Github", auth.SocialToken{AccessToken: "a", ExpiresIn: 60}, now))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "Github", out["provider"])
	assert.Equal(t, "2026-10-18T12:01:00Z", out["expiresAt"])
}
