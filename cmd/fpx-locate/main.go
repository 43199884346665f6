// Command fpx-locate finds the source of Hono route handlers in JavaScript
// and TypeScript sources and bundles without running them.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/fiberplane/fpx-sub000/pkg/resolve"
)

var version = "0.1.0-dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one command line and returns the process exit code:
// 0 on success, 2 when a query could not be answered, 1 on any other error.
func run(args []string, in io.Reader, out, errOut io.Writer) int {
	c := newCLI(in, out, errOut)
	root := c.rootCommand()
	root.SetArgs(args)

	err := root.Execute()
	if serr := c.shutdown(); serr != nil && err == nil {
		err = serr
	}
	if err == nil {
		return 0
	}

	var f *resolve.Failure
	if errors.As(err, &f) {
		// Already printed as the command's result.
		return 2
	}
	fmt.Fprintf(errOut, "%s %v\n", color.New(color.FgRed).Sprint("Error:"), err)
	return 1
}
