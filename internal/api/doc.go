// Package api serves the live session status, the signal event stream and the
// stored session history over HTTP.
package api
