// Package core is the orchestration layer.  It composes transports,
// the client registry and sessions into a running server and provides
// a builder that assembles it from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  irc  →  session  →  core  →  cmd (CLI)
package core

import "context"

// Mode represents a complete operational mode of minircd.  A mode owns
// its full lifecycle from binding listeners to teardown.
type Mode interface {
	Run(ctx context.Context) error
}

var _ Mode = (*ServeMode)(nil)
