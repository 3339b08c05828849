// Package client is a Go client for the recap HTTP API. Besides the plain
// submit, status, and delete calls it offers PollUntilDone, which waits for
// a job to reach a terminal state and reports every observed change.
package client
