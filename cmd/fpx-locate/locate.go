package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fiberplane/fpx-sub000/pkg/locator"
)

func (c *cli) routeCommand() *cobra.Command {
	var (
		method     string
		path       string
		middleware bool
	)
	cmd := &cobra.Command{
		Use:   "route [paths...]",
		Short: "Locate the handler of a route",
		Long: `Locate the function that handles METHOD PATH. Paths may be files or
directories; file order decides which registration wins on ties.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.locate(cmd.Context(), args, locator.Query{
				Method:     method,
				Path:       path,
				Middleware: middleware,
			})
		},
	}
	cmd.Flags().StringVarP(&method, "method", "m", "", "HTTP method")
	cmd.Flags().StringVarP(&path, "path", "p", "", "request path or registered pattern")
	cmd.Flags().BoolVar(&middleware, "middleware", false, "locate the first middleware applying to the route")
	cobra.CheckErr(cmd.MarkFlagRequired("method"))
	cobra.CheckErr(cmd.MarkFlagRequired("path"))
	return cmd
}

func (c *cli) handlerCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "handler [paths...]",
		Short: "Locate a function by its declared name",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.locate(cmd.Context(), args, locator.Query{HandlerName: name})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "declared name of the handler")
	cobra.CheckErr(cmd.MarkFlagRequired("name"))
	return cmd
}

// locate answers one query and prints the result. An unanswered query is
// returned as its *resolve.Failure so the exit code reflects it.
func (c *cli) locate(ctx context.Context, paths []string, q locator.Query) error {
	loc, files, err := c.newLocator()
	if err != nil {
		return err
	}
	defer files.Close()
	defer loc.Close()

	snap, err := c.snapshot(paths, files)
	if err != nil {
		return err
	}

	res := loc.Locate(orBackground(ctx), snap, q)
	if c.jsonOutput() {
		if err := writeJSON(c.out, res); err != nil {
			return err
		}
	} else {
		printResult(c.out, res)
	}
	if !res.OK() {
		return res.Failure
	}
	return nil
}

func (c *cli) routesCommand() *cobra.Command {
	var (
		middleware bool
		method     string
	)
	cmd := &cobra.Command{
		Use:   "routes [paths...]",
		Short: "List registered routes with their handler locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, files, err := c.newLocator()
			if err != nil {
				return err
			}
			defer files.Close()
			defer loc.Close()

			snap, err := c.snapshot(args, files)
			if err != nil {
				return err
			}
			a, err := loc.Analyze(orBackground(cmd.Context()), snap)
			if err != nil {
				return err
			}

			method = strings.ToUpper(method)
			var rows []locator.Route
			for _, r := range a.Routes() {
				if r.Middleware && !middleware {
					continue
				}
				if method != "" && r.Method != method && r.Method != "ALL" {
					continue
				}
				rows = append(rows, r)
			}

			if c.jsonOutput() {
				return writeJSON(c.out, routesOutput{
					Routes:      rows,
					Diagnostics: a.Diagnostics,
					Total:       len(rows),
				})
			}
			printRoutes(c.out, rows)
			printDiagnostics(c.errOut, a.Diagnostics)
			return nil
		},
	}
	cmd.Flags().BoolVar(&middleware, "middleware", false, "include middleware rows")
	cmd.Flags().StringVarP(&method, "method", "m", "", "only list routes for this method")
	return cmd
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func describeQuery(q locator.Query) string {
	if q.HandlerName != "" {
		return fmt.Sprintf("handler %q", q.HandlerName)
	}
	return q.String()
}
