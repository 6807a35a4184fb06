package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/waabox/kiroauth/internal/auth"
)

// Step is a stage of the interactive login.
type Step int

const (
	StepOpeningBrowser Step = iota
	StepWaitingForRedirect
	StepExchangingCode
	StepDone
)

var stepLabels = []string{
	StepOpeningBrowser:     "Opening browser",
	StepWaitingForRedirect: "Waiting for authorization",
	StepExchangingCode:     "Exchanging authorization code",
	StepDone:               "Done",
}

var (
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
)

// StepMsg moves the view to Step. Detail is shown under the step, e.g. the login
// URL so the user can open it by hand.
type StepMsg struct {
	Step   Step
	Detail string
}

// LoginDoneMsg ends the program with the outcome of the flow.
type LoginDoneMsg struct {
	Token auth.SocialToken
	Err   error
}

type tickMsg time.Time

// LoginModel renders the progress of a browser login. The flow itself runs
// outside the program and reports through StepMsg and LoginDoneMsg.
type LoginModel struct {
	provider string
	step     Step
	detail   string
	started  time.Time
	now      time.Time
	token    auth.SocialToken
	err      error
	done     bool
	// Cancel aborts the flow when the user quits. Optional.
	Cancel context.CancelFunc
}

// NewLoginModel creates a LoginModel for the given identity provider.
func NewLoginModel(provider string, started time.Time) LoginModel {
	return LoginModel{provider: provider, started: started, now: started}
}

// Init starts the elapsed-time ticker.
func (m LoginModel) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles flow progress, the ticker and quit keys.
func (m LoginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.now = time.Time(msg)
		return m, tick()

	case StepMsg:
		m.step = msg.Step
		m.detail = msg.Detail
		return m, nil

	case LoginDoneMsg:
		m.done = true
		m.token = msg.Token
		m.err = msg.Err
		if msg.Err == nil {
			m.step = StepDone
		}
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.Cancel != nil {
				m.Cancel()
			}
			m.done = true
			m.err = context.Canceled
			return m, tea.Quit
		}
	}
	return m, nil
}

// Err returns the error the flow finished with, if any.
func (m LoginModel) Err() error {
	return m.err
}

// Token returns the token obtained by a successful flow.
func (m LoginModel) Token() auth.SocialToken {
	return m.token
}

// View renders the step list.
func (m LoginModel) View() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Kiro login via %s\n\n", m.provider))

	for s := StepOpeningBrowser; s < StepDone; s++ {
		switch {
		case s < m.step || m.step == StepDone:
			sb.WriteString(doneStyle.Render("✓ " + stepLabels[s]))
		case s == m.step && m.err != nil:
			sb.WriteString(errorStyle.Render("✗ " + stepLabels[s]))
		case s == m.step:
			sb.WriteString(activeStyle.Render("● " + stepLabels[s]))
		default:
			sb.WriteString(pendingStyle.Render("  " + stepLabels[s]))
		}
		sb.WriteString("\n")
		if s == m.step && m.detail != "" && !m.done {
			sb.WriteString(hintStyle.Render("    " + m.detail))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	switch {
	case m.err != nil:
		sb.WriteString(errorStyle.Render("Login failed: " + m.err.Error()))
		sb.WriteString("\n")
	case m.step == StepDone:
		sb.WriteString(doneStyle.Render("Login complete."))
		if exp := m.token.ExpiresAt(m.now); !exp.IsZero() {
			sb.WriteString(fmt.Sprintf(" Access token expires at %s.", exp.Local().Format(time.RFC3339)))
		}
		sb.WriteString("\n")
	default:
		sb.WriteString(hintStyle.Render(fmt.Sprintf("%s elapsed · q to abort", m.now.Sub(m.started).Truncate(time.Second))))
		sb.WriteString("\n")
	}
	return sb.String()
}
