package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/6over3/webplatform"
	"github.com/6over3/webplatform/host/gojahost"
	"github.com/6over3/webplatform/internal/config"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	alertStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const consoleHelp = `click <selector>         click the first matching element
fire <selector> <type>   dispatch an event
type <selector> <text>   set an element's value
hash <value>             change location.hash
html                     print the document
storage                  list localStorage
quit                     leave`

// maxHistory bounds the entries kept on screen.
const maxHistory = 20

type command struct {
	name string
	args []string
}

// parseCommand splits a console line. type keeps the rest of the line as
// its text.
func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command")
	}
	cmd := command{name: fields[0], args: fields[1:]}

	want := 0
	switch cmd.name {
	case "click", "hash":
		want = 1
	case "fire":
		want = 2
	case "type":
		if len(cmd.args) < 2 {
			return command{}, fmt.Errorf("usage: type <selector> <text>")
		}
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "type"))
		sel, text, _ := strings.Cut(rest, " ")
		cmd.args = []string{sel, strings.TrimSpace(text)}
		return cmd, nil
	case "html", "storage", "help", "quit", "exit":
	default:
		return command{}, fmt.Errorf("unknown command %q, try help", cmd.name)
	}
	if len(cmd.args) != want {
		return command{}, fmt.Errorf("%s takes %d argument(s), got %d", cmd.name, want, len(cmd.args))
	}
	return cmd, nil
}

// console executes commands against a goja host and its session.
type console struct {
	host   *gojahost.Host
	s      *webplatform.Session
	alerts []string
}

func (c *console) exec(cmd command) (string, error) {
	switch cmd.name {
	case "click":
		return "", c.host.Fire(cmd.args[0], "click")
	case "fire":
		return "", c.host.Fire(cmd.args[0], cmd.args[1])
	case "type":
		n, ok, err := c.s.Query(cmd.args[0])
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("no element matches %q", cmd.args[0])
		}
		return "", n.SetProp("value", cmd.args[1])
	case "hash":
		if err := c.host.SetHash(cmd.args[0]); err != nil {
			return "", err
		}
		return c.host.Hash(), nil
	case "html":
		n, ok, err := c.s.Query("body")
		if err != nil || !ok {
			return c.host.Render()
		}
		return n.HTML()
	case "storage":
		return c.storage()
	case "help":
		return consoleHelp, nil
	}
	return "", nil
}

func (c *console) storage() (string, error) {
	st := c.s.LocalStorage()
	var b strings.Builder
	it := st.Iter()
	for it.Next() {
		v, _, err := st.Get(it.Key())
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%s = %s\n", it.Key(), v)
	}
	if err := it.Err(); err != nil {
		return "", err
	}
	if b.Len() == 0 {
		return "(empty)", nil
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

// takeAlerts returns the alerts raised since the last call.
func (c *console) takeAlerts() []string {
	a := c.alerts
	c.alerts = nil
	return a
}

type entry struct {
	input  string
	output string
	alerts []string
	err    error
}

type consoleModel struct {
	c        *console
	input    textinput.Model
	history  []entry
	quitting bool
}

func newConsoleModel(c *console) *consoleModel {
	ti := textinput.New()
	ti.Placeholder = "click #add"
	ti.Prompt = "> "
	ti.Width = 60
	ti.Focus()
	return &consoleModel{c: c, input: ti}
}

func (m *consoleModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			if m.submit(line) {
				m.quitting = true
				return m, tea.Quit
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit runs one line and reports whether the console should exit.
func (m *consoleModel) submit(line string) bool {
	e := entry{input: line}
	cmd, err := parseCommand(line)
	if err == nil && (cmd.name == "quit" || cmd.name == "exit") {
		return true
	}
	if err == nil {
		e.output, err = m.c.exec(cmd)
	}
	e.err = err
	e.alerts = m.c.takeAlerts()

	m.history = append(m.history, e)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	return false
}

func (m *consoleModel) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("webplatform console"))
	b.WriteString(" ")
	b.WriteString(m.c.host.Hash())
	b.WriteString("\n\n")

	for _, e := range m.history {
		b.WriteString(promptStyle.Render("> " + e.input))
		b.WriteString("\n")
		for _, a := range e.alerts {
			b.WriteString(alertStyle.Render("alert: " + a))
			b.WriteString("\n")
		}
		switch {
		case e.err != nil:
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", e.err)))
			b.WriteString("\n")
		case e.output != "":
			b.WriteString(resultStyle.Render(e.output))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("help commands • enter run • esc quit"))
	return b.String()
}

func consoleCmd(args []string) error {
	cfg, err := loadConfig("console", args)
	if err != nil {
		return err
	}
	if cfg.Host != config.HostGoja {
		return fmt.Errorf("console runs on the goja host, config asks for %q", cfg.Host)
	}
	// Log lines would tear the terminal UI.
	cfg.Log.Level = "error"

	ctx := context.Background()
	e, err := newEnv(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.close(ctx)

	doc, err := readDocument(cfg.Document)
	if err != nil {
		return err
	}
	c := &console{}
	c.host, err = gojahost.New(e.rt, gojahost.Options{
		HTML:    doc,
		Hash:    cfg.Hash,
		Logger:  e.logger,
		OnAlert: func(msg string) { c.alerts = append(c.alerts, msg) },
	})
	if err != nil {
		return err
	}
	if c.s, err = e.session(ctx, c.host); err != nil {
		return err
	}
	if _, err := mountApp(c.s, e.logger); err != nil {
		return fmt.Errorf("mount app: %w", err)
	}

	_, err = tea.NewProgram(newConsoleModel(c)).Run()
	return err
}
