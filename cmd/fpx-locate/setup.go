package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const serverName = "fpx-locate"

type agentKind int

const (
	// cliAgent is configured by running `<binary> mcp add`.
	cliAgent agentKind = iota
	// fileAgent is configured by editing a JSON config file.
	fileAgent
)

// agent describes how to detect and configure one MCP client.
type agent struct {
	id     string
	name   string
	kind   agentKind
	binary string

	// markers are directories whose presence reveals a project-level agent.
	markers []string

	// configPath returns the JSON config file of a file agent.
	configPath func() string

	// serversKey is "servers" for VS Code and "mcpServers" elsewhere.
	serversKey string

	// extra fields of the server entry, e.g. "type": "stdio".
	extra map[string]string
}

// detected is an agent found on this machine.
type detected struct {
	agent
	config     string
	configured bool
}

// Replaceable in tests.
var (
	lookPath = exec.LookPath
	statPath = os.Stat
)

var agents = []agent{
	{id: "claude_code", name: "Claude Code", kind: cliAgent, binary: "claude"},
	{id: "openai_codex", name: "OpenAI Codex", kind: cliAgent, binary: "codex"},
	{
		id: "vscode_copilot", name: "VS Code Copilot", kind: fileAgent,
		markers:    []string{".vscode"},
		configPath: func() string { return filepath.Join(".vscode", "mcp.json") },
		serversKey: "servers",
		extra:      map[string]string{"type": "stdio"},
	},
	{
		id: "cursor", name: "Cursor", kind: fileAgent,
		markers:    []string{".cursor"},
		configPath: func() string { return filepath.Join(".cursor", "mcp.json") },
		serversKey: "mcpServers",
	},
	{
		id: "claude_desktop", name: "Claude Desktop", kind: fileAgent,
		configPath: desktopConfigPath,
		serversKey: "mcpServers",
	},
}

func desktopConfigPath() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Claude", "claude_desktop_config.json")
	default:
		return filepath.Join(home, ".config", "Claude", "claude_desktop_config.json")
	}
}

func (c *cli) setupCommand() *cobra.Command {
	var auto bool
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the MCP server with detected AI agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runSetup(c.in, c.out, auto)
			return nil
		},
	}
	cmd.Flags().BoolVar(&auto, "auto", false, "configure every detected agent without prompting")
	return cmd
}

// detectAgents returns the agents present on this machine.
func detectAgents() []detected {
	var out []detected
	for _, a := range agents {
		switch a.kind {
		case cliAgent:
			if _, err := lookPath(a.binary); err == nil {
				out = append(out, detected{agent: a, configured: hasServer(".mcp.json", "mcpServers")})
			}

		case fileAgent:
			if path, ok := locateConfig(a); ok {
				d := detected{agent: a, config: path}
				d.configured = hasServer(path, a.serversKey)
				out = append(out, d)
			}
		}
	}
	return out
}

// locateConfig reports whether a file agent is present and where its config
// lives. Agents without markers are present when the config directory exists.
func locateConfig(a agent) (string, bool) {
	for _, m := range a.markers {
		if _, err := statPath(m); err == nil {
			return a.configPath(), true
		}
	}
	if len(a.markers) > 0 || a.configPath == nil {
		return "", false
	}
	path := a.configPath()
	if _, err := statPath(filepath.Dir(path)); err != nil {
		return "", false
	}
	return path, true
}

// hasServer reports whether the JSON config at path already lists the server.
func hasServer(path, serversKey string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var config map[string]any
	if err := json.Unmarshal(data, &config); err != nil {
		return false
	}
	servers, _ := config[serversKey].(map[string]any)
	_, ok := servers[serverName]
	return ok
}

// addServerEntry merges the server into existing JSON config bytes.
// It returns nil, nil when the server is already present.
func addServerEntry(existing []byte, serversKey string, extra map[string]string) ([]byte, error) {
	config := make(map[string]any)
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &config); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	}

	servers, ok := config[serversKey].(map[string]any)
	if !ok {
		servers = make(map[string]any)
	}
	if _, exists := servers[serverName]; exists {
		return nil, nil
	}

	entry := map[string]any{
		"command": serverName,
		"args":    []any{"serve", "--root", "."},
	}
	for k, v := range extra {
		entry[k] = v
	}
	servers[serverName] = entry
	config[serversKey] = servers

	out, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func writeAgentConfig(path, serversKey string, extra map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", path, err)
	}
	merged, err := addServerEntry(existing, serversKey, extra)
	if err != nil || merged == nil {
		return err
	}
	return os.WriteFile(path, merged, 0o644)
}

func registerWithCLI(binary, scope string) error {
	args := []string{"mcp", "add"}
	if scope != "" {
		args = append(args, "--scope", scope)
	}
	args = append(args, serverName, "--", serverName, "serve", "--root", ".")
	cmd := exec.Command(binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// confirm asks a yes/no question; empty input and EOF mean yes.
func confirm(r *bufio.Scanner, w io.Writer, question string) bool {
	fmt.Fprintf(w, "%s [Y/n] ", question)
	if !r.Scan() {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(r.Text())) {
	case "", "y", "yes":
		return true
	}
	return false
}

// chooseScope asks where a CLI agent should register the server and returns
// "project", "user" or "" to skip.
func chooseScope(r *bufio.Scanner, w io.Writer, agentName string) string {
	fmt.Fprintf(w, "\n%s: add the %s MCP server?\n", agentName, serverName)
	fmt.Fprintln(w, "  [1] Project scope (shared with team)")
	fmt.Fprintln(w, "  [2] User scope (personal, global)")
	fmt.Fprintln(w, "  [3] Skip")
	fmt.Fprint(w, "  > ")
	if !r.Scan() {
		return "project"
	}
	switch strings.TrimSpace(r.Text()) {
	case "", "1":
		return "project"
	case "2":
		return "user"
	}
	return ""
}

// runSetup detects agents and registers the server with each of them.
func runSetup(in io.Reader, w io.Writer, auto bool) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	found := detectAgents()
	if len(found) == 0 {
		fmt.Fprintln(w, "No supported AI agents detected.")
		return
	}

	fmt.Fprintln(w, "Detected AI agents:")
	for _, d := range found {
		note := ""
		if d.configured {
			note = " (already configured)"
		}
		fmt.Fprintf(w, "  * %s%s\n", d.name, note)
	}
	fmt.Fprintln(w)

	scanner := bufio.NewScanner(in)
	if !auto && !confirm(scanner, w, "Configure agents?") {
		return
	}

	for _, d := range found {
		if d.configured {
			fmt.Fprintf(w, "%s: already configured, skipping\n", d.name)
			continue
		}

		switch d.kind {
		case cliAgent:
			scope := "project"
			if !auto {
				if scope = chooseScope(scanner, w, d.name); scope == "" {
					fmt.Fprintln(w, "  skipped")
					continue
				}
			}
			if err := registerWithCLI(d.binary, scope); err != nil {
				fmt.Fprintf(w, "  %s %s: %v\n", red("!"), d.name, err)
				continue
			}
			fmt.Fprintf(w, "  %s %s configured (scope: %s)\n", green("+"), d.name, scope)

		case fileAgent:
			if !auto && !confirm(scanner, w, fmt.Sprintf("%s: add to %s?", d.name, d.config)) {
				fmt.Fprintln(w, "  skipped")
				continue
			}
			if err := writeAgentConfig(d.config, d.serversKey, d.extra); err != nil {
				fmt.Fprintf(w, "  %s %s: %v\n", red("!"), d.name, err)
				continue
			}
			fmt.Fprintf(w, "  %s %s configured (%s)\n", green("+"), d.name, d.config)
		}
	}
}
