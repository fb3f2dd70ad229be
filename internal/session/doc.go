// Package session runs one wake-up detection session: it owns a frame source
// and a motion detector, turns detector outcomes into ordered signals for the
// presentation layer, and records a summary of the session when it ends.
package session
