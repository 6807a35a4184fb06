package browser

import (
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// launch starts cmd without blocking on it. Replaced in tests.
var launch = func(cmd *exec.Cmd) error {
	_, err := start(cmd)
	return err
}

// start runs cmd and reaps it in the background. The returned channel
// receives the exit result once the process is gone.
func start(cmd *exec.Cmd) (<-chan error, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()
	return done, nil
}

// Open opens rawURL in the default browser on Linux, macOS and Windows.
// Only absolute http and https URLs are accepted.
func Open(rawURL string) error {
	if rawURL == "" {
		return errors.New("browser URL cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme %q: only http and https are allowed", u.Scheme)
	}

	cmd, err := command(runtime.GOOS, rawURL)
	if err != nil {
		return err
	}
	if err := launch(cmd); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}

func command(goos, rawURL string) (*exec.Cmd, error) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", rawURL), nil
	case "darwin":
		return exec.Command("open", rawURL), nil
	case "windows":
		// cmd's start would split the URL at '&'.
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}
