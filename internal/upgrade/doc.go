// Package upgrade provides the upgrade capability: a stateful program's
// way to ask the host to replace the code behind its own instance.
//
// The capability does exactly one thing. RequestCodeReplacement converts a
// code hash into the registry's raw identifier form, hands it to the host,
// and reports a single opaque failure, ErrUpgradeFailed, for any refusal.
// It keeps no state, caches no code pointer, and never retries. It also
// never touches instance state: that belongs to the program, and the new
// code is expected to read the old layout.
//
// Atomicity is the host's job. The registry's write happens inside the
// host's call transaction, so when a later step of the same call fails the
// pointer change is discarded with everything else.
//
// Authorization is mandatory. A Capability is built with an Authorizer
// and refuses (ErrUnauthorized) before the registry is ever asked. Use
// AllowAll to opt out explicitly.
//
// Programs compose the capability by embedding Upgradeable and mounting
// it on their Mux, which exposes the externally callable "upgrade"
// message next to their own domain messages.
package upgrade
