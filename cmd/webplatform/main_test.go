package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/6over3/webplatform/internal/config"
)

func TestProbeCmd(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, "55\n"},
		{[]string{"355"}, "55\n"},
		{[]string{"7"}, "-1\n"},
		{[]string{"-3"}, "-1\n"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, probeCmd(tt.args, &out))
			assert.Equal(t, tt.want, out.String())
		})
	}

	var out bytes.Buffer
	assert.Error(t, probeCmd([]string{"abc"}, &out))
	assert.Error(t, probeCmd([]string{"99999999999"}, &out))
	assert.Error(t, probeCmd([]string{"1", "2"}, &out))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestRunReplaysEvents(t *testing.T) {
	dir := t.TempDir()
	doc := writeFile(t, dir, "page.html", `<!DOCTYPE html><html><head><title>demo</title></head><body></body></html>`)
	cfg := writeFile(t, dir, "config.yaml", `
document: `+doc+`
fps: 0
log:
  level: error
events:
  - {selector: "#title", type: input, value: milk}
  - {selector: "#add", type: click}
  - {selector: "#title", type: input, value: eggs}
  - {selector: "#add", type: click}
  - {selector: "#items li", type: click}
  - {selector: window, type: hashchange, value: "#active"}
`)

	var out bytes.Buffer
	require.NoError(t, runCmd([]string{"-config", cfg}, &out))
	rendered := out.String()
	assert.Contains(t, rendered, "<title>demo</title>")
	assert.Contains(t, rendered, `data-filter="active"`)
	assert.Contains(t, rendered, "eggs</li>")
	assert.NotContains(t, rendered, "milk</li>", "done items are filtered out")
	assert.Contains(t, rendered, "<b>1</b> left")
}

func TestRunReportsReplayErrors(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", `
fps: 0
log:
  level: error
events:
  - {selector: "#nope", type: click}
`)
	var out bytes.Buffer
	err := runCmd([]string{"-config", cfg}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events[0]")
	assert.Empty(t, out.String())
}

func TestRunRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", "host: netscape\n")
	assert.Error(t, runCmd([]string{"-config", cfg}, &bytes.Buffer{}))
}

func TestReplayWindowOnlyTakesHashchange(t *testing.T) {
	f := newApp(t, "")
	err := replay(f.s, gojaDriver{h: f.host}, nil)
	require.NoError(t, err)

	err = replay(f.s, gojaDriver{h: f.host}, []config.EventConfig{{Selector: "window", Type: "click"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hashchange")
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    command
		wantErr string
	}{
		{"click #add", command{name: "click", args: []string{"#add"}}, ""},
		{"fire #title input", command{name: "fire", args: []string{"#title", "input"}}, ""},
		{"  hash   done ", command{name: "hash", args: []string{"done"}}, ""},
		{"type #title buy  more milk ", command{name: "type", args: []string{"#title", "buy  more milk"}}, ""},
		{"html", command{name: "html", args: []string{}}, ""},
		{"quit", command{name: "quit", args: []string{}}, ""},
		{"", command{}, "empty"},
		{"click", command{}, "takes 1 argument"},
		{"fire #a", command{}, "takes 2 argument"},
		{"type #title", command{}, "usage"},
		{"storage now", command{}, "takes 0 argument"},
		{"dance", command{}, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newConsole(t *testing.T) *console {
	t.Helper()
	f := newApp(t, "")
	return &console{host: f.host, s: f.s}
}

func TestConsoleCommands(t *testing.T) {
	c := newConsole(t)
	run := func(line string) string {
		t.Helper()
		cmd, err := parseCommand(line)
		require.NoError(t, err)
		out, err := c.exec(cmd)
		require.NoError(t, err)
		return out
	}

	assert.Equal(t, "(empty)", run("storage"))
	run("type #title write tests")
	run("click #add")
	assert.Contains(t, run("html"), "write tests</li>")
	assert.Regexp(t, `^todo:\w+ = 0\|write tests$`, run("storage"))
	assert.Equal(t, "#done", run("hash done"))
	assert.NotContains(t, run("html"), "write tests</li>")
	assert.Contains(t, run("help"), "click <selector>")

	cmd, err := parseCommand("click #missing")
	require.NoError(t, err)
	_, err = c.exec(cmd)
	assert.Error(t, err)
}

func TestConsoleModel(t *testing.T) {
	c := newConsole(t)
	m := newConsoleModel(c)
	// consoleCmd routes the host's alerts here.
	c.alerts = append(c.alerts, "hello")

	m.input.SetValue("click #add")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	require.Len(t, m.history, 1)
	assert.Equal(t, []string{"hello"}, m.history[0].alerts)
	assert.Empty(t, m.input.Value())

	m.input.SetValue("dance")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Len(t, m.history, 2)
	assert.Error(t, m.history[1].err)

	view := m.View()
	assert.Contains(t, view, "webplatform console")
	assert.Contains(t, view, "alert: hello")
	assert.Contains(t, view, "unknown command")

	for i := 0; i < maxHistory+5; i++ {
		m.submit("html")
	}
	assert.Len(t, m.history, maxHistory)

	m.input.SetValue("quit")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Empty(t, m.View())
}
