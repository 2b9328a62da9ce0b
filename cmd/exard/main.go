package main

import (
	"fmt"
	"os"
	"strings"
)

var version = "development"

func main() {
	args := os.Args[1:]
	useSubCommand := len(args) > 0 && !strings.HasPrefix(args[0], "-")
	if useSubCommand {
		subCommand := args[0]
		args = args[1:]
		switch subCommand {
		case "serve":
			runDaemon(args)
		case "check-config":
			runCheckConfig(args)
		default:
			fmt.Fprintf(os.Stderr, "invalid sub-command %q\n", subCommand)
			os.Exit(1)
		}
	} else {
		runDaemon(args)
	}
}
