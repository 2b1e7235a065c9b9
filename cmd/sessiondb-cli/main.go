// Command sessiondb-cli manages a running sessiondb-server over HTTP.
//
//	sessiondb-cli --server localhost:5080 session create --attr user=alice
//	sessiondb-cli -o json system status
//	sessiondb-cli system reap --max-age 2h
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/sessiondb/internal/cli/command"
)

func main() {
	if err := command.App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
