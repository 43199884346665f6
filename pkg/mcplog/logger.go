// Package mcplog records MCP tool calls as JSONL and summarizes the log.
package mcplog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// LogEntry is the schema for one JSONL line written per tool call.
type LogEntry struct {
	Ts            string         `json:"ts"`
	Tool          string         `json:"tool"`
	Params        map[string]any `json:"params"`
	DurationMs    int64          `json:"duration_ms"`
	ResponseBytes int            `json:"response_bytes"`
	TokensEst     int            `json:"tokens_est"`

	// ToolError is set when the tool answered with an error result, for
	// example when a snapshot file could not be read. Located failures such
	// as NotFound are answers, not tool errors.
	ToolError bool    `json:"tool_error,omitempty"`
	Error     *string `json:"error"`

	// Outcome is "match" or the failure reason of a locate answer. It is
	// empty for tools that do not answer a single query.
	Outcome string `json:"outcome,omitempty"`
}

// NewEntry builds the log entry for one finished tool call.
func NewEntry(tool string, args map[string]any, start time.Time, result *mcp.CallToolResult, err error) LogEntry {
	rb := ResponseBytes(result)
	entry := LogEntry{
		Ts:            start.UTC().Format(time.RFC3339),
		Tool:          tool,
		Params:        SanitizeParams(args),
		DurationMs:    Now().Sub(start).Milliseconds(),
		ResponseBytes: rb,
		TokensEst:     rb / 4,
		ToolError:     result != nil && result.IsError,
		Outcome:       Outcome(result),
	}
	if err != nil {
		msg := err.Error()
		entry.Error = &msg
	}
	return entry
}

// Outcome reads the answer kind out of a locate result. Results that are
// errors, or whose first content is not a locate answer, yield "".
func Outcome(result *mcp.CallToolResult) string {
	if result == nil || result.IsError || len(result.Content) == 0 {
		return ""
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return ""
	}
	var answer struct {
		Match   json.RawMessage `json:"match"`
		Failure *struct {
			Reason string `json:"reason"`
		} `json:"failure"`
	}
	if json.Unmarshal([]byte(text.Text), &answer) != nil {
		return ""
	}
	switch {
	case answer.Failure != nil:
		return answer.Failure.Reason
	case len(answer.Match) > 0:
		return "match"
	}
	return ""
}

// Logger appends structured JSONL entries to a file.
// It is safe for concurrent use.
type Logger struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewLogger opens (or creates) the file at path for append-only writing.
// Parent directories are created automatically.
// Returns nil, nil if path is empty; callers treat a nil Logger as disabled.
func NewLogger(path string) (*Logger, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("mcplog: create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("mcplog: open log file: %w", err)
	}
	return &Logger{f: f, enc: json.NewEncoder(f)}, nil
}

// Write appends a single entry. Callers usually ignore the error so that
// log failures never affect tool results.
func (l *Logger) Write(entry LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(entry)
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// SanitizeParams returns a copy of args safe for logging. Inline source
// and other long strings become a "{key}_len" entry, and path lists become
// a "{key}_count" entry, so snapshot content never reaches the log.
func SanitizeParams(args map[string]any) map[string]any {
	const shortStringMax = 64
	out := make(map[string]any, len(args))
	for k, v := range args {
		switch v := v.(type) {
		case string:
			if len(v) > shortStringMax {
				out[k+"_len"] = len(v)
				continue
			}
			out[k] = v
		case []any:
			out[k+"_count"] = len(v)
		case []string:
			out[k+"_count"] = len(v)
		default:
			out[k] = v
		}
	}
	return out
}

// ResponseBytes returns the serialized byte length of a CallToolResult's
// content. Returns 0 for a nil result or on marshal error.
func ResponseBytes(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	b, err := json.Marshal(result.Content)
	if err != nil {
		return 0
	}
	return len(b)
}

// Now is a replaceable clock for testing.
var Now = func() time.Time { return time.Now() }

// ReadEntries reads every entry of a JSONL log. Blank lines are skipped.
func ReadEntries(path string) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mcplog: open log file: %w", err)
	}
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("mcplog: line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mcplog: read log file: %w", err)
	}
	return entries, nil
}

// ToolSummary aggregates the calls of one tool.
type ToolSummary struct {
	Tool          string  `json:"tool"`
	Calls         int     `json:"calls"`
	Errors        int     `json:"errors"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	MaxDurationMs int64   `json:"max_duration_ms"`
	TokensEst     int     `json:"tokens_est"`

	// Unanswered counts locate calls that ended in a typed failure.
	Unanswered int `json:"unanswered"`
}

// Summarize groups entries by tool, sorted by call count then name.
func Summarize(entries []LogEntry) []ToolSummary {
	byTool := make(map[string]*ToolSummary)
	total := make(map[string]int64)
	for _, e := range entries {
		s, ok := byTool[e.Tool]
		if !ok {
			s = &ToolSummary{Tool: e.Tool}
			byTool[e.Tool] = s
		}
		s.Calls++
		if e.ToolError || e.Error != nil {
			s.Errors++
		}
		if e.DurationMs > s.MaxDurationMs {
			s.MaxDurationMs = e.DurationMs
		}
		if e.Outcome != "" && e.Outcome != "match" {
			s.Unanswered++
		}
		s.TokensEst += e.TokensEst
		total[e.Tool] += e.DurationMs
	}

	out := make([]ToolSummary, 0, len(byTool))
	for tool, s := range byTool {
		s.AvgDurationMs = float64(total[tool]) / float64(s.Calls)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Calls != out[j].Calls {
			return out[i].Calls > out[j].Calls
		}
		return out[i].Tool < out[j].Tool
	})
	return out
}
