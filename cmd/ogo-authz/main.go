// Command ogo-authz resolves groupware object permissions from the shell.
//
// The CLI supports:
//   - check: resolve permission masks for a batch of GIDs as a principal set
//   - doctor: verify the connected database carries the groupware tables
//   - version: print the build version
//
// Commands that touch the database need --db or DATABASE_URL.
//
// Usage:
//
//	ogo-authz check --as 10000,10003 persons:10100 projects:8800
package main

import (
	"github.com/opengroupware/ogo-authz/internal/cli"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		cli.ExitWithError(err)
	}
}
