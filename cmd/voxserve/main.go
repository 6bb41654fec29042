package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fmueller/voxserve/internal/cli"
	"github.com/spf13/cobra"
)

// usageErrorMarkers are cobra's phrasings for argument and flag mistakes.
var usageErrorMarkers = []string{
	"unknown command",
	"unknown flag",
	"unknown shorthand flag",
	"accepts ",
	"requires at least",
	"requires at most",
	"requires between",
	"required flag",
	"missing required",
	"invalid argument",
}

func main() {
	os.Exit(run(cli.NewRootCmd(), os.Args[1:], os.Stderr))
}

func run(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return 0
	}

	fmt.Fprintln(stderr, err)
	if shouldPrintUsageHint(err) {
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", helpHintTarget(root, args))
	}
	return 1
}

func shouldPrintUsageHint(err error) bool {
	if err == nil {
		return false
	}

	message := strings.ToLower(err.Error())
	for _, marker := range usageErrorMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

// helpHintTarget names the deepest command the user was addressing.
func helpHintTarget(root *cobra.Command, args []string) string {
	if root == nil {
		return "voxserve"
	}
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return root.CommandPath()
	}
	if found, _, err := root.Find(args); err == nil && found != nil {
		return found.CommandPath()
	}
	return root.CommandPath()
}
