package tui_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waabox/kiroauth/internal/auth"
	"github.com/waabox/kiroauth/internal/tui"
)

var started = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func update(t *testing.T, m tui.LoginModel, msg tea.Msg) (tui.LoginModel, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(tui.LoginModel), cmd
}

func TestLogin_InitialViewShowsProviderAndFirstStep(t *testing.T) {
	m := tui.NewLoginModel("Github", started)
	view := m.View()

	if !strings.Contains(view, "Kiro login via Github") {
		t.Errorf("expected provider in view, got:\n%s", view)
	}
	if !strings.Contains(view, "● Opening browser") {
		t.Errorf("expected active first step, got:\n%s", view)
	}
}

func TestLogin_StepMsg_ShowsDetail(t *testing.T) {
	m := tui.NewLoginModel("Google", started)
	m, _ = update(t, m, tui.StepMsg{Step: tui.StepWaitingForRedirect, Detail: "https://auth.example.com/login?idp=Google"})
	view := m.View()

	if !strings.Contains(view, "✓ Opening browser") {
		t.Errorf("expected first step marked done, got:\n%s", view)
	}
	if !strings.Contains(view, "● Waiting for authorization") {
		t.Errorf("expected waiting step active, got:\n%s", view)
	}
	if !strings.Contains(view, "https://auth.example.com/login?idp=Google") {
		t.Errorf("expected login URL hint, got:\n%s", view)
	}
}

func TestLogin_DoneMsg_QuitsWithToken(t *testing.T) {
	m := tui.NewLoginModel("Google", started)
	m, cmd := update(t, m, tui.LoginDoneMsg{Token: auth.SocialToken{AccessToken: "a", ExpiresIn: 3600}})

	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if m.Err() != nil {
		t.Errorf("unexpected error: %v", m.Err())
	}
	if m.Token().AccessToken != "a" {
		t.Errorf("expected token 'a', got '%s'", m.Token().AccessToken)
	}
	if !strings.Contains(m.View(), "Login complete.") {
		t.Errorf("expected completion in view, got:\n%s", m.View())
	}
}

func TestLogin_DoneMsgWithError_MarksCurrentStepFailed(t *testing.T) {
	m := tui.NewLoginModel("Google", started)
	m, _ = update(t, m, tui.StepMsg{Step: tui.StepExchangingCode})
	m, _ = update(t, m, tui.LoginDoneMsg{Err: errors.New("auth service token creation failed: 500")})

	view := m.View()
	if !strings.Contains(view, "✗ Exchanging authorization code") {
		t.Errorf("expected failed step, got:\n%s", view)
	}
	if !strings.Contains(view, "Login failed: auth service token creation failed: 500") {
		t.Errorf("expected error message, got:\n%s", view)
	}
}

func TestLogin_QuitKey_CancelsFlow(t *testing.T) {
	cancelled := false
	m := tui.NewLoginModel("Google", started)
	m.Cancel = func() { cancelled = true }

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	if !cancelled {
		t.Error("expected cancel to be called")
	}
	if !errors.Is(m.Err(), context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", m.Err())
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
}

func TestLogin_UnknownMessageIsIgnored(t *testing.T) {
	m := tui.NewLoginModel("Google", started)
	updated, cmd := m.Update(tea.Msg(nil))
	if cmd != nil {
		t.Error("expected no command for unknown message")
	}
	m = updated.(tui.LoginModel)
	if !strings.Contains(m.View(), "0s elapsed") {
		t.Errorf("expected elapsed counter, got:\n%s", m.View())
	}
}
