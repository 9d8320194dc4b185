package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sweepbox/sweepbox/internal/bridge"
	"github.com/sweepbox/sweepbox/internal/config"
	"github.com/sweepbox/sweepbox/internal/purge"
	"github.com/sweepbox/sweepbox/internal/scan"
	"github.com/sweepbox/sweepbox/internal/session"
)

type viewState int

const (
	viewLogin    viewState = iota // credential form
	viewScanning                  // enumeration + header fetch underway
	viewResults                   // sender tallies list
	viewPurging                   // sequential sender removal underway
)

type AppModel struct {
	// Core state
	bridge   *bridge.Bridge
	settings config.Settings
	ctx      context.Context
	cancel   context.CancelFunc
	Err      error
	status   string

	// Login form
	emailInput textinput.Model
	passInput  textinput.Model
	focusPass  bool
	envCreds   bool

	// View state machine
	view     viewState
	creds    session.Credentials
	tallies  []scan.SenderTally
	total    int
	selected map[string]bool
	failures []string
	fraction float64

	// Sub-models
	resultsList list.Model
	bar         progress.Model

	// Layout
	width, height int
}

// NewAppModel builds the initial model. A non-nil account skips the login
// form and starts scanning immediately.
func NewAppModel(ctx context.Context, cancel context.CancelFunc, b *bridge.Bridge, settings config.Settings, account *config.Account) AppModel {
	email := textinput.New()
	email.Placeholder = "you@gmail.com"
	email.Focus()

	pass := textinput.New()
	pass.Placeholder = "app password"
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '*'

	rl := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	// Remove esc from the list's built-in Quit binding so it only clears filters
	rl.KeyMap.Quit.SetKeys("q")

	m := AppModel{
		bridge:      b,
		settings:    settings,
		ctx:         ctx,
		cancel:      cancel,
		view:        viewLogin,
		selected:    map[string]bool{},
		emailInput:  email,
		passInput:   pass,
		resultsList: rl,
		bar:         progress.New(progress.WithDefaultGradient()),
	}
	if account != nil {
		m.creds = session.Credentials{Email: account.User, Secret: session.Secret(account.Pass)}
		m.envCreds = true
		m.view = viewScanning
		m.status = "Fetching message IDs..."
	}
	return m
}

func (m *AppModel) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.waitForEvent()}
	if m.view == viewScanning {
		cmds = append(cmds, m.startScanCmd())
	}
	return tea.Batch(cmds...)
}

// waitForEvent blocks on the bridge stream. Update re-arms it after every
// engine event so the subscription stays alive for the whole session.
func (m *AppModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return engineEventMsg{event: <-m.bridge.Events()}
	}
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resultsList.SetSize(msg.Width, msg.Height-5) // room for the share bar and footer
		barWidth := msg.Width - 8
		if barWidth < 10 {
			barWidth = 10
		}
		m.bar.Width = barWidth
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case engineEventMsg:
		model, cmd := m.handleEngineEvent(msg.event)
		return model, tea.Batch(cmd, m.waitForEvent())

	case statusMsg:
		m.status = string(msg)
		return m, nil
	}

	// Delegate to active sub-model
	var cmd tea.Cmd
	switch m.view {
	case viewLogin:
		return m.updateLoginInputs(msg)
	case viewResults:
		m.resultsList, cmd = m.resultsList.Update(msg)
	}
	return m, cmd
}

func (m *AppModel) handleEngineEvent(event bridge.Event) (tea.Model, tea.Cmd) {
	switch e := event.(type) {
	case bridge.ScanProgress:
		m.view = viewScanning
		m.fraction = e.Fraction
		m.status = e.Label
		return m, nil

	case bridge.ScanComplete:
		m.tallies = e.Senders
		m.total = e.TotalMessages
		m.selected = map[string]bool{}
		m.resultsList.SetItems(talliesToItems(m.tallies, m.selected))
		m.resultsList.Title = resultsTitle(m.settings.Folder, len(m.tallies), m.total)
		m.view = viewResults
		m.status = ""
		return m, nil

	case bridge.ScanError:
		if m.envCreds {
			m.Err = errors.New(e.Message)
			return m, tea.Quit
		}
		m.view = viewLogin
		m.fraction = 0
		m.status = e.Message
		return m, nil

	case bridge.DeleteProgress:
		m.view = viewPurging
		m.fraction = e.Fraction
		m.status = e.Label
		return m, nil

	case bridge.DeleteError:
		m.failures = append(m.failures, e.Message)
		return m, nil

	case bridge.DeleteComplete:
		removed := make(map[string]bool, len(e.Removed))
		for _, address := range e.Removed {
			removed[address] = true
		}
		kept := make([]scan.SenderTally, 0, len(m.tallies))
		for _, tally := range m.tallies {
			if !removed[tally.Address] {
				kept = append(kept, tally)
			}
		}
		m.tallies = kept
		m.total -= e.TotalRemoved
		if m.total < 0 {
			m.total = 0
		}
		m.selected = map[string]bool{}
		m.resultsList.SetItems(talliesToItems(m.tallies, m.selected))
		m.resultsList.Title = resultsTitle(m.settings.Folder, len(m.tallies), m.total)
		m.view = viewResults
		m.status = fmt.Sprintf("Purged %d messages from %d senders", e.TotalRemoved, len(e.Removed))
		if len(m.failures) > 0 {
			m.status += fmt.Sprintf(", %d failed", len(m.failures))
		}
		return m, clearStatusAfter(5 * time.Second)
	}
	return m, nil
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Global keys
	switch key {
	case "ctrl+c":
		m.cancel()
		return m, tea.Quit
	}

	switch m.view {
	case viewLogin:
		switch key {
		case "esc":
			m.cancel()
			return m, tea.Quit
		case "tab", "shift+tab", "up", "down":
			return m.switchLoginFocus()
		case "enter":
			if !m.focusPass {
				return m.switchLoginFocus()
			}
			return m.submitLogin()
		}
		return m.updateLoginInputs(msg)

	case viewScanning, viewPurging:
		switch key {
		case "q", "esc":
			m.cancel()
			return m, tea.Quit
		}
		return m, nil

	case viewResults:
		// When the list is filtering, let it handle all keys except ctrl+c
		if m.resultsList.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.resultsList, cmd = m.resultsList.Update(msg)
			return m, cmd
		}
		switch key {
		case "q":
			m.cancel()
			return m, tea.Quit
		case " ", "enter":
			return m.toggleSelected()
		case "a":
			return m.selectAll(true)
		case "n":
			return m.selectAll(false)
		case "d":
			return m.startPurge(purge.ModeTrash)
		case "x":
			return m.startPurge(purge.ModePermanent)
		case "r":
			m.view = viewScanning
			m.fraction = 0
			m.status = "Fetching message IDs..."
			return m, m.startScanCmd()
		}
		var cmd tea.Cmd
		m.resultsList, cmd = m.resultsList.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *AppModel) switchLoginFocus() (tea.Model, tea.Cmd) {
	m.focusPass = !m.focusPass
	if m.focusPass {
		m.emailInput.Blur()
		return m, m.passInput.Focus()
	}
	m.passInput.Blur()
	return m, m.emailInput.Focus()
}

func (m *AppModel) updateLoginInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var emailCmd, passCmd tea.Cmd
	m.emailInput, emailCmd = m.emailInput.Update(msg)
	m.passInput, passCmd = m.passInput.Update(msg)
	return m, tea.Batch(emailCmd, passCmd)
}

func (m *AppModel) submitLogin() (tea.Model, tea.Cmd) {
	email := strings.TrimSpace(m.emailInput.Value())
	pass := m.passInput.Value()
	if email == "" || pass == "" {
		m.status = "Email and app password are both required"
		return m, clearStatusAfter(2 * time.Second)
	}
	m.creds = session.Credentials{Email: email, Secret: session.Secret(pass)}
	m.view = viewScanning
	m.fraction = 0
	m.status = "Fetching message IDs..."
	return m, m.startScanCmd()
}

func (m *AppModel) toggleSelected() (tea.Model, tea.Cmd) {
	selected := m.resultsList.SelectedItem()
	if selected == nil {
		return m, nil
	}
	item := selected.(senderItem)
	item.selected = !item.selected
	m.selected[item.Address] = item.selected
	return m, m.resultsList.SetItem(m.resultsList.Index(), item)
}

func (m *AppModel) selectAll(on bool) (tea.Model, tea.Cmd) {
	m.selected = map[string]bool{}
	if on {
		for _, tally := range m.tallies {
			m.selected[tally.Address] = true
		}
	}
	m.resultsList.SetItems(talliesToItems(m.tallies, m.selected))
	return m, nil
}

func (m *AppModel) startPurge(mode purge.Mode) (tea.Model, tea.Cmd) {
	senders := make([]string, 0, len(m.selected))
	for _, tally := range m.tallies {
		if m.selected[tally.Address] {
			senders = append(senders, tally.Address)
		}
	}
	if len(senders) == 0 {
		m.status = "No senders selected"
		return m, clearStatusAfter(2 * time.Second)
	}
	m.failures = nil
	m.view = viewPurging
	m.fraction = 0
	m.status = fmt.Sprintf("Purging %d senders...", len(senders))
	return m, m.startDeleteCmd(senders, mode)
}

// Commands

func (m *AppModel) startScanCmd() tea.Cmd {
	return func() tea.Msg {
		if err := m.bridge.StartScan(m.ctx, m.creds, m.settings.Folder, m.settings.ScanDepth); err != nil {
			return statusMsg(err.Error())
		}
		return nil
	}
}

func (m *AppModel) startDeleteCmd(senders []string, mode purge.Mode) tea.Cmd {
	return func() tea.Msg {
		if err := m.bridge.StartDelete(m.ctx, m.creds, m.settings.Folder, senders, mode); err != nil {
			return statusMsg(err.Error())
		}
		return nil
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusMsg("")
	})
}

func resultsTitle(folder string, senders, total int) string {
	return fmt.Sprintf("%s (%d senders, %d messages)", folder, senders, total)
}

// View renders the appropriate view based on current state.
func (m *AppModel) View() string {
	// Error state
	if m.Err != nil {
		return "Error: " + m.Err.Error() + "\n"
	}

	var b strings.Builder

	switch m.view {
	case viewLogin:
		b.WriteString(titleStyle.Render("sweepbox"))
		b.WriteString("\n")
		b.WriteString("Sign in with your IMAP account and app password.\n\n")
		b.WriteString(m.emailInput.View())
		b.WriteString("\n")
		b.WriteString(m.passInput.View())
		b.WriteString("\n")
		b.WriteString(loginFooter())

	case viewScanning:
		b.WriteString(titleStyle.Render("Scanning " + m.settings.Folder))
		b.WriteString("\n")
		b.WriteString(m.bar.ViewAs(m.fraction))
		b.WriteString("\n")
		b.WriteString(progressFooter())

	case viewPurging:
		b.WriteString(titleStyle.Render("Purging " + m.settings.Folder))
		b.WriteString("\n")
		b.WriteString(m.bar.ViewAs(m.fraction))
		b.WriteString("\n")
		for _, failure := range lastN(m.failures, 3) {
			b.WriteString(failureStyle.Render(failure))
			b.WriteString("\n")
		}
		b.WriteString(progressFooter())

	case viewResults:
		b.WriteString(m.resultsList.View())
		b.WriteString("\n")
		if bar := shareBar(m.tallies, m.total, m.width-4); bar != "" {
			b.WriteString(bar)
			b.WriteString("\n")
		}
		b.WriteString(resultsFooter())
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
	}

	return b.String()
}

func lastN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
