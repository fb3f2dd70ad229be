// Package sensor binds depth frame producers to the detection session.
//
// A Source is an owned, explicitly scoped handle: the caller that opens it
// closes it. Three kinds exist: a serial-attached depth bridge, a replay of a
// recorded frame log, and a synthetic bedroom scene used for development.
package sensor
