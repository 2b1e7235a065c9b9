// Package output renders sessiondb-cli results as a table, JSON or YAML.
//
// Tables are the default for humans. JSON and YAML keep the server's
// field names so output can be piped into other tools.
package output
