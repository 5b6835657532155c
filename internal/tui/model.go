// Package tui is the terminal front end: login and registration screens and
// a scrollable card dashboard that re-renders on every card update.
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"aiworker/dashboard-go/internal/app"
	"aiworker/dashboard-go/internal/cards"
	"aiworker/dashboard-go/internal/forms"
	"aiworker/dashboard-go/internal/models"
	"aiworker/dashboard-go/internal/poll"
	"aiworker/dashboard-go/internal/services"
)

type screen int

const (
	screenLogin screen = iota
	screenRegister
	screenDashboard
)

type editKind int

const (
	editNone editKind = iota
	editSymbol
	editQuery
	editPrompt
	editUpload
)

var editLabels = map[editKind]string{
	editSymbol: "Symbol",
	editQuery:  "Trend keyword",
	editPrompt: "Ask Gemini",
	editUpload: "File path (" + cards.UploadAccept + ")",
}

type (
	loginResultMsg struct {
		user models.User
		form forms.LoginForm
		err  error
	}
	registerResultMsg struct {
		form forms.RegisterForm
		err  error
	}
	uploadResultMsg struct {
		name string
		err  error
	}
	cardUpdateMsg   cards.Update
	streamClosedMsg struct{}
	sessionEndedMsg struct{}
)

const sessionExpired = "Session expired. Please log in again."

type Model struct {
	app *app.App
	ctx context.Context
	log *zap.Logger

	screen         screen
	loginInputs    []textinput.Model
	registerInputs []textinput.Model
	showPasswords  bool
	focus          int
	formErr        string
	formNotice     string
	busy           bool

	updates     <-chan cards.Update
	unsubscribe func()
	ended       chan struct{}
	selected    int
	editing     editKind
	input       textinput.Model
	status      string

	vp     viewport.Model
	spin   spinner.Model
	render *renderer
	width  int
	height int
}

// New builds the model. When the session already holds a token the
// dashboard screen is shown directly.
func New(ctx context.Context, a *app.App) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = dimStyle

	in := textinput.New()
	in.Prompt = "│ "
	in.CharLimit = 512

	m := Model{
		app:   a,
		ctx:   ctx,
		log:   a.Log.Named("tui"),
		loginInputs: []textinput.Model{
			newInput("Email", false),
			newInput("Password", true),
		},
		registerInputs: []textinput.Model{
			newInput("Full Name", false),
			newInput("Email", false),
			newInput("Password", true),
			newInput("Confirm Password", true),
		},
		ended:  make(chan struct{}, 1),
		input:  in,
		vp:     viewport.New(80, 20),
		spin:   sp,
		render: newRenderer(80),
		width:  80,
		height: 24,
	}
	m.loginInputs[0].Focus()
	ended := m.ended
	a.Session.OnLogout(func() {
		select {
		case ended <- struct{}{}:
		default:
		}
	})
	if a.Session.Authenticated() {
		m.enterDashboard()
	}
	return m
}

func newInput(placeholder string, secret bool) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Prompt = "│ "
	ti.CharLimit = 256
	ti.Width = 40
	if secret {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '•'
	}
	return ti
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spin.Tick, waitForSessionEnd(m.ended)}
	if m.updates != nil {
		cmds = append(cmds, waitForUpdate(m.updates))
	}
	return tea.Batch(cmds...)
}

func waitForUpdate(ch <-chan cards.Update) tea.Cmd {
	return func() tea.Msg {
		upd, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return cardUpdateMsg(upd)
	}
}

func waitForSessionEnd(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return sessionEndedMsg{}
	}
}

func (m *Model) enterDashboard() {
	m.screen = screenDashboard
	m.formErr, m.formNotice = "", ""
	m.updates, m.unsubscribe = m.app.Dashboard.Subscribe()
	m.syncViewport()
}

func (m *Model) leaveDashboard(reason string) {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.updates = nil
	m.editing = editNone
	m.screen = screenLogin
	m.focus = 0
	m.formErr = reason
	for i := range m.loginInputs {
		m.loginInputs[i].SetValue("")
	}
	m.focusInputs(m.loginInputs)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.render.resize(msg.Width)
		m.syncViewport()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case cardUpdateMsg:
		if m.screen != screenDashboard {
			return m, nil
		}
		if !m.app.Session.Authenticated() {
			m.leaveDashboard(sessionExpired)
			return m, textinput.Blink
		}
		m.syncViewport()
		return m, waitForUpdate(m.updates)

	case streamClosedMsg:
		return m, nil

	case sessionEndedMsg:
		next := waitForSessionEnd(m.ended)
		if m.screen != screenDashboard || m.app.Session.Authenticated() {
			return m, next
		}
		m.leaveDashboard(sessionExpired)
		return m, tea.Batch(next, textinput.Blink)

	case loginResultMsg:
		m.busy = false
		if msg.err != nil {
			m.formErr = msg.form.Error
			return m, nil
		}
		m.enterDashboard()
		m.status = "Welcome " + firstNonEmpty(msg.user.Name, msg.user.Email)
		return m, waitForUpdate(m.updates)

	case registerResultMsg:
		m.busy = false
		if msg.err != nil {
			m.formErr = msg.form.Error
			return m, nil
		}
		m.screen = screenLogin
		m.formErr = ""
		m.formNotice = msg.form.Notice
		m.focus = 1
		m.loginInputs[0].SetValue(strings.TrimSpace(msg.form.Email))
		m.focusInputs(m.loginInputs)
		return m, textinput.Blink

	case uploadResultMsg:
		if msg.err != nil {
			m.status = "Upload failed: " + services.UserMessage(msg.err)
		} else {
			m.status = "Uploaded " + msg.name
		}
		m.syncViewport()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.screen {
		case screenLogin:
			return m.updateLogin(msg)
		case screenRegister:
			return m.updateRegister(msg)
		default:
			return m.updateDashboard(msg)
		}
	}

	if m.screen == screenDashboard {
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) focusInputs(inputs []textinput.Model) {
	for i := range inputs {
		if i == m.focus {
			inputs[i].Focus()
		} else {
			inputs[i].Blur()
		}
	}
}

// moveFocus handles the keys shared by both forms. It reports whether the
// key was consumed.
func (m *Model) moveFocus(key string, inputs []textinput.Model) bool {
	switch key {
	case "tab", "down":
		m.focus = (m.focus + 1) % len(inputs)
	case "shift+tab", "up":
		m.focus = (m.focus - 1 + len(inputs)) % len(inputs)
	default:
		return false
	}
	m.focusInputs(inputs)
	return true
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	key := msg.String()
	switch {
	case key == "esc":
		return m, tea.Quit
	case key == "ctrl+r":
		m.screen, m.focus = screenRegister, 0
		m.formErr, m.formNotice = "", ""
		m.focusInputs(m.registerInputs)
		return m, textinput.Blink
	case key == "enter":
		m.busy = true
		m.formErr = ""
		return m, m.submitLogin()
	case m.moveFocus(key, m.loginInputs):
		return m, nil
	}
	var cmd tea.Cmd
	m.loginInputs[m.focus], cmd = m.loginInputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) submitLogin() tea.Cmd {
	f := forms.LoginForm{Email: m.loginInputs[0].Value(), Password: m.loginInputs[1].Value()}
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		user, err := a.Login(ctx, &f)
		return loginResultMsg{user: user, form: f, err: err}
	}
}

func (m Model) updateRegister(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	key := msg.String()
	switch {
	case key == "esc" || key == "ctrl+r":
		m.screen, m.focus = screenLogin, 0
		m.formErr = ""
		m.focusInputs(m.loginInputs)
		return m, textinput.Blink
	case key == "ctrl+p":
		m.showPasswords = !m.showPasswords
		mode := textinput.EchoPassword
		if m.showPasswords {
			mode = textinput.EchoNormal
		}
		m.registerInputs[2].EchoMode = mode
		m.registerInputs[3].EchoMode = mode
		return m, nil
	case key == "enter":
		f := forms.RegisterForm{
			Name:            m.registerInputs[0].Value(),
			Email:           m.registerInputs[1].Value(),
			Password:        m.registerInputs[2].Value(),
			ConfirmPassword: m.registerInputs[3].Value(),
		}
		// Validation failures are shown without a round trip.
		if err := f.Validate(); err != nil {
			m.formErr = err.Error()
			return m, nil
		}
		m.busy = true
		m.formErr = ""
		a, ctx := m.app, m.ctx
		return m, func() tea.Msg {
			_, err := a.Register(ctx, &f)
			return registerResultMsg{form: f, err: err}
		}
	case m.moveFocus(key, m.registerInputs):
		return m, nil
	}
	var cmd tea.Cmd
	m.registerInputs[m.focus], cmd = m.registerInputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) updateDashboard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editing != editNone {
		return m.updateEditing(msg)
	}
	dash := m.app.Dashboard
	order := dash.Grid().Order()
	current := order[m.selected%len(order)]

	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "j", "down":
		m.selected = (m.selected + 1) % len(order)
	case "k", "up":
		m.selected = (m.selected - 1 + len(order)) % len(order)
	case "J", "shift+down":
		if err := dash.Grid().MoveBy(current, 1); err == nil && m.selected < len(order)-1 {
			m.selected++
		}
	case "K", "shift+up":
		if err := dash.Grid().MoveBy(current, -1); err == nil && m.selected > 0 {
			m.selected--
		}
	case "r":
		_ = dash.Refresh(current)
		m.status = "Refreshing " + string(current)
	case "R":
		dash.RefreshAll()
		m.status = "Refreshing all cards"
	case "d":
		days := nextDays(dash.Trend().Query().Days)
		if err := dash.Trend().SetDays(days); err != nil {
			m.status = err.Error()
		} else {
			m.status = fmt.Sprintf("Trend window %d days", days)
		}
	case "e":
		dash.Upload().ToggleSnippet()
	case "s":
		return m.startEdit(editSymbol, dash.Stock().Symbol())
	case "q":
		return m.startEdit(editQuery, dash.Trend().Query().Query)
	case "a":
		return m.startEdit(editPrompt, "")
	case "u":
		return m.startEdit(editUpload, "")
	case "L":
		if err := m.app.Logout(m.ctx); err != nil {
			m.log.Warn("logout", zap.Error(err))
		}
		m.leaveDashboard("")
		m.formNotice = "Logged out."
		return m, textinput.Blink
	default:
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	}
	m.syncViewport()
	return m, nil
}

func nextDays(current int) int {
	for i, d := range cards.DayOptions {
		if d == current {
			return cards.DayOptions[(i+1)%len(cards.DayOptions)]
		}
	}
	return cards.DayOptions[0]
}

func (m Model) startEdit(kind editKind, value string) (tea.Model, tea.Cmd) {
	m.editing = kind
	m.input.Placeholder = editLabels[kind]
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.syncViewport()
	return m, m.input.Focus()
}

func (m Model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editing = editNone
		m.input.Blur()
		m.syncViewport()
		return m, nil
	case "enter":
		kind, value := m.editing, m.input.Value()
		m.editing = editNone
		m.input.Blur()
		cmd := m.applyEdit(kind, value)
		m.syncViewport()
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) applyEdit(kind editKind, value string) tea.Cmd {
	dash := m.app.Dashboard
	switch kind {
	case editSymbol:
		if err := dash.Stock().SetSymbol(value); err != nil {
			m.status = err.Error()
			return nil
		}
		m.status = "Symbol " + dash.Stock().Symbol()
	case editQuery:
		_ = dash.Trend().SetQuery(value)
		m.status = "Trend keyword " + dash.Trend().Query().Query
	case editPrompt:
		dash.Insights().Ask(value)
		m.status = "Asked Gemini"
	case editUpload:
		return uploadCmd(m.ctx, dash.Upload(), strings.TrimSpace(value))
	}
	return nil
}

func uploadCmd(ctx context.Context, card *cards.UploadCard, path string) tea.Cmd {
	return func() tea.Msg {
		name := filepath.Base(path)
		f, err := os.Open(path)
		if err != nil {
			return uploadResultMsg{name: name, err: err}
		}
		defer f.Close()
		return uploadResultMsg{name: name, err: card.Upload(ctx, name, f)}
	}
}

func (m *Model) syncViewport() {
	if m.screen != screenDashboard {
		return
	}
	w := m.width
	if w < 40 {
		w = 40
	}
	h := m.height - 2
	if m.editing != editNone {
		h--
	}
	if h < 3 {
		h = 3
	}
	m.vp.Width, m.vp.Height = w, h

	order := m.app.Dashboard.Grid().Order()
	blocks := make([]string, 0, len(order))
	for i, id := range order {
		card, ok := m.app.Dashboard.Card(id)
		if !ok {
			continue
		}
		style := cardStyle
		if i == m.selected%len(order) {
			style = selectedCard
		}
		blocks = append(blocks, style.Width(w-2).Render(m.render.card(card.View())))
	}
	m.vp.SetContent(lipgloss.JoinVertical(lipgloss.Left, blocks...))
}

func (m Model) View() string {
	switch m.screen {
	case screenLogin:
		return m.viewForm("Login", m.loginInputs, "enter login · tab next field · ctrl+r register · esc quit")
	case screenRegister:
		toggle := "ctrl+p show passwords"
		if m.showPasswords {
			toggle = "ctrl+p hide passwords"
		}
		return m.viewForm("Register", m.registerInputs, "enter register · "+toggle+" · esc back")
	}
	return m.viewDashboard()
}

func (m Model) viewForm(title string, inputs []textinput.Model, help string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(title) + "\n\n")
	for _, in := range inputs {
		b.WriteString(in.View() + "\n")
	}
	if m.busy {
		b.WriteString("\n" + m.spin.View() + " submitting…\n")
	}
	if m.formErr != "" {
		b.WriteString("\n" + errorStyle.Render(m.formErr) + "\n")
	}
	if m.formNotice != "" {
		b.WriteString("\n" + noticeStyle.Render(m.formNotice) + "\n")
	}
	return formBox.Render(strings.TrimRight(b.String(), "\n")) + "\n" + dimStyle.Render(help)
}

func (m Model) viewDashboard() string {
	user := "session restored"
	if u := m.app.Session.User(); u != nil {
		user = firstNonEmpty(u.Name, u.Email)
	}
	header := "AI Worker Dashboard · " + user
	if m.anyLoading() {
		header += " " + m.spin.View()
	}

	footer := "j/k select · J/K move · r/R refresh · s symbol · d days · q keyword · a ask · u upload · e snippet · L logout"
	if m.status != "" {
		footer = m.status + " · " + footer
	}

	parts := []string{headerBar.Width(m.width).Render(header), m.vp.View()}
	if m.editing != editNone {
		parts = append(parts, editLabels[m.editing]+" "+m.input.View())
	}
	parts = append(parts, footerBar.Width(m.width).Render(footer))
	return strings.Join(parts, "\n")
}

func (m Model) anyLoading() bool {
	d := m.app.Dashboard
	if d.Stock().StockView().Status == poll.Loading || d.Trend().TrendView().Status == poll.Loading {
		return true
	}
	return d.News().NewsView().Status == poll.Loading || d.Insights().InsightsView().Loading || d.Upload().UploadView().Uploading
}

// Close drops the dashboard subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Run starts the program on the alternate screen and blocks until the user
// quits or ctx is cancelled.
func Run(ctx context.Context, a *app.App) error {
	m := New(ctx, a)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if fm, ok := final.(Model); ok {
		fm.Close()
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}
