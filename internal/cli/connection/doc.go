// Package connection is the HTTP client sessiondb-cli uses to reach a
// sessiondb-server.
//
// Responses arrive in the server's {code, message, data} envelope;
// ParseResponse unwraps data or turns an error envelope into an *APIError.
package connection
