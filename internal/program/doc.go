// Package program defines what a stateful program looks like to the host.
//
// A program is Go code selected by the manifest of a code image. The host
// hands each message to the program together with an Env: the instance's
// identity, its caller, a working copy of its state, and a way to ask the
// runtime registry to replace the instance's code. Everything a handler
// does through Env happens inside the host's call transaction, so a
// handler that returns an error leaves no trace.
package program
