// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It adapts the recap service's submit, poll, and
// delete operations to JSON over HTTP.
package api
