// Command voicectl administers a voice-auth deployment.
//
// Usage:
//
//	voicectl [--database-url URL] <command>
//
// Commands:
//
//	migrate up|down|version  - apply or inspect the schema
//	seed --file seed.yaml    - load challenge phrases and a bootstrap admin
//
// The database URL defaults to $DATABASE_URL, then to the DB_* variables the
// API reads.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
