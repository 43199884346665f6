package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/fiberplane/fpx-sub000/pkg/locator"
	"github.com/fiberplane/fpx-sub000/pkg/mcplog"
	"github.com/fiberplane/fpx-sub000/pkg/resolve"
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

// routesOutput is the JSON form of the routes command.
type routesOutput struct {
	Routes      []locator.Route     `json:"routes"`
	Diagnostics []syntax.Diagnostic `json:"diagnostics,omitempty"`
	Total       int                 `json:"total"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func spanRange(s syntax.Span) string {
	return fmt.Sprintf("%s:%d:%d-%d:%d", s.File, s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}

// printResult prints a located handler with its source, or the failure.
func printResult(w io.Writer, res locator.Result) {
	if !res.OK() {
		printFailure(w, res.Query, res.Failure)
		return
	}

	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	m := res.Match
	fmt.Fprintf(w, "%s %s  %s\n", green("✓"), describeQuery(res.Query), cyan(spanRange(m.Span)))

	var details []string
	if m.Name != "" {
		details = append(details, m.Name)
	}
	details = append(details, m.Kind.String(), fmt.Sprintf("wrap depth %d", m.WrapDepth))
	if m.Pattern != "" {
		details = append(details, "registered as "+m.Method+" "+m.Pattern)
	}
	fmt.Fprintf(w, "  %s\n", dim(strings.Join(details, ", ")))
	if len(m.Chain) > 1 {
		fmt.Fprintf(w, "  %s %s\n", dim("via"), strings.Join(m.Chain, " -> "))
	}

	fmt.Fprintln(w)
	for _, line := range strings.Split(m.FunctionText, "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
}

func printFailure(w io.Writer, q locator.Query, f *resolve.Failure) {
	red := color.New(color.FgRed).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Fprintf(w, "%s %s  %s: %s\n", red("✗"), describeQuery(q), red(f.Reason), f.Detail)
	if f.Module != "" {
		ref := f.Module
		if f.Export != "" {
			ref += "#" + f.Export
		}
		fmt.Fprintf(w, "  %s %s\n", dim("module"), ref)
	}
	if len(f.Chain) > 0 {
		fmt.Fprintf(w, "  %s %s\n", dim("chain"), strings.Join(f.Chain, " -> "))
	}
	if f.At != nil {
		fmt.Fprintf(w, "  %s %s\n", dim("at"), f.At)
	}
	for _, s := range f.Candidates {
		fmt.Fprintf(w, "  %s %s\n", dim("candidate"), spanRange(s))
	}
}

func printRoutes(w io.Writer, rows []locator.Route) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No routes found.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Method", "Path", "Handler", "Location"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)

	for _, r := range rows {
		handler, location := "-", ""
		switch {
		case r.Handler != nil:
			handler = r.Handler.Name
			if handler == "" {
				handler = "(" + r.Handler.Kind.String() + ")"
			}
			location = r.Handler.Span.String()
		case r.Failure != nil:
			location = r.Failure.Reason.String() + ": " + r.Failure.Detail
		}
		if r.Middleware {
			handler = "use " + handler
		}
		table.Append([]string{fmt.Sprintf("%d", r.Order), r.Method, r.Path, handler, location})
	}
	table.Render()

	fmt.Fprintf(w, "\n%d routes\n", len(rows))
}

func printDiagnostics(w io.Writer, diags []syntax.Diagnostic) {
	yellow := color.New(color.FgYellow).SprintFunc()
	for _, d := range diags {
		if d.Severity < syntax.SeverityWarning {
			continue
		}
		fmt.Fprintf(w, "%s %s: %s\n", yellow("warning"), d.Span, d.Message)
	}
}

func printCallSummary(w io.Writer, summaries []mcplog.ToolSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No tool calls logged.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Tool", "Calls", "Errors", "Unanswered", "Avg ms", "Max ms", "Tokens"})
	table.SetBorder(false)
	table.SetAutoFormatHeaders(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
	})

	var calls, errs, unanswered, tokens int
	for _, s := range summaries {
		table.Append([]string{
			s.Tool,
			fmt.Sprintf("%d", s.Calls),
			fmt.Sprintf("%d", s.Errors),
			fmt.Sprintf("%d", s.Unanswered),
			fmt.Sprintf("%.1f", s.AvgDurationMs),
			fmt.Sprintf("%d", s.MaxDurationMs),
			fmt.Sprintf("%d", s.TokensEst),
		})
		calls += s.Calls
		errs += s.Errors
		unanswered += s.Unanswered
		tokens += s.TokensEst
	}
	table.SetFooter([]string{"Total", fmt.Sprintf("%d", calls), fmt.Sprintf("%d", errs), fmt.Sprintf("%d", unanswered), "", "", fmt.Sprintf("%d", tokens)})
	table.Render()
}
