// Package types holds project-wide identity constants shared by the factory,
// the wire format and the CLI.
//
//nolint:revive // types is a common Go package naming convention
package types

// Version is the canonical project version.
// The CLI, the wire format and the message schema move in lockstep.
const Version = "0.4.0"

// ProtocolVersion is the version of the message schema in package messages.
// Bumped only when a field is added, removed or renamed.
const ProtocolVersion = "0.4.0"

// ImplementationName identifies the producing test framework in
// TestRunStarted messages. Consumers key report formatting off this value,
// so it never varies per run.
const ImplementationName = "SpecFlow"
