// Package moderation screens marketplace messages before they leave the
// sender. It detects personal contact information (emails, phone numbers,
// social handles, links, payment and messaging platforms and their evasive
// spellings), flags spam-shaped messages against the sender's recent history,
// and composes both into a single allow/block gate.
//
// Every function in this package is pure: no I/O, no shared mutable state.
// The compiled patterns are package-level and safe for concurrent use.
package moderation
