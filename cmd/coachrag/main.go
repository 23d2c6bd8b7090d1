// cmd/coachrag/main.go
package main

import (
	cmd "github.com/mwiater/coachrag/internal/commands"
)

// Set by -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	setVersionInfo = cmd.SetVersionInfo
	executeCmd     = cmd.Execute
)

// main starts the coachrag CLI by delegating to the cobra root command.
func main() {
	setVersionInfo(version, commit, date)
	executeCmd()
}
