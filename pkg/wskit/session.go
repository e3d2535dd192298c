// Package wskit multiplexes eventkit's invoke traffic over a single
// WebSocket connection, keyed by pkg/transport.Frame.ID per in-flight
// invoke call rather than a separate channel-id layer, since
// pkg/bus.Context already demultiplexes by id.
package wskit

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/fgrzl/claims"
)

// Scope conventions an authenticated principal's claims.Principal.Scopes
// can carry to gate which invoke tags a connection may use.
const (
	ScopeAll    = "eventkit::*"
	ScopePrefix = "eventkit::"
)

// Session gates which invoke-family tags a connection may route,
// derived from the connecting principal's scopes.
type Session interface {
	CanRoute(tag string) bool
	AllowAll() bool
	AllowedPrefixes() []string
}

type session struct {
	allowAll bool
	prefixes []string
}

// NewClientSession returns a Session with no restriction, for the
// dialing side of a connection (which only ever sees responses to
// calls it made).
func NewClientSession() Session {
	return &session{allowAll: true}
}

// NewServerSession derives a Session from principal's scopes. At least
// one recognized scope is required; an unscoped principal cannot
// route anything.
func NewServerSession(principal claims.Principal) (Session, error) {
	var prefixes []string

	for _, scope := range principal.Scopes() {
		if scope == ScopeAll {
			return &session{allowAll: true}, nil
		}
		if strings.HasPrefix(scope, ScopePrefix) {
			prefixes = append(prefixes, strings.TrimPrefix(scope, ScopePrefix))
			continue
		}
		slog.Warn("wskit: ignoring unrecognized scope", "scope", scope)
	}

	if len(prefixes) == 0 {
		return nil, fmt.Errorf("wskit: invalid scope: expected %q or %q{tagPrefix}", ScopeAll, ScopePrefix)
	}
	return &session{prefixes: prefixes}, nil
}

func (s *session) CanRoute(tag string) bool {
	if s.allowAll {
		return true
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(tag, p) {
			return true
		}
	}
	return false
}

func (s *session) AllowAll() bool { return s.allowAll }

func (s *session) AllowedPrefixes() []string {
	if s.allowAll {
		return nil
	}
	return s.prefixes
}

// tagFromKind recovers the invoke-family tag from a Frame.Kind of the
// form "<tag>:<suffix>" (see pkg/invoke.Family.kind).
func tagFromKind(kind string) string {
	if i := strings.LastIndex(kind, ":"); i >= 0 {
		return kind[:i]
	}
	return kind
}
