// Package command defines the sessiondb-cli commands on urfave/cli/v2.
//
// Every command talks to a running sessiondb-server over its HTTP API and
// prints the result with the selected output format.
package command
