// Package identity assigns and classifies the stable participant identity
// used across reconnects. Every connection carries two identifiers: the
// PersistentID (stable, echoed by clients on reconnect) and the
// ConnectionID (transient, one per socket).
package identity

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Role classifies what a connection is allowed to do in a room.
type Role string

const (
	RoleGameMaster Role = "gamemaster"
	RolePlayer     Role = "player"
	RoleTransient  Role = "transient" // pre-naming bootstrap connections
)

// PersistentID prefixes denote provenance.
const (
	PrefixGameMaster = "GM-"
	PrefixPlayer     = "P-"
	PrefixFallback   = "F-"
)

// ErrNameRequired rejects player connections that carry neither a cached
// identity nor a display name.
var ErrNameRequired = errors.New("Player name required")

// Handshake carries the identity-relevant parameters of a new connection.
type Handshake struct {
	PersistentID        string // auth.persistentId, may be empty
	DisplayName         string // auth.displayName, may be empty
	IsGameMaster        bool   // query.isGameMaster
	IsInitialConnection bool   // query.isInitialConnection
	Recovered           bool   // transport-level session recovery rebind
}

// Session is the resolved identity for one accepted connection.
type Session struct {
	PersistentID string
	ConnectionID string
	DisplayName  string
	Role         Role
}

// Resolve computes the session identity for a handshake, or rejects it.
//
// GM handshakes echo a cached GM-* identity so a returning game master can
// reclaim their room by identity match; without one a fresh GM-* is minted.
// Named players mint P-* once and echo it thereafter; connections that have
// not picked a name yet get a transient F-* so the join screen can function.
func Resolve(h Handshake) (Session, error) {
	if !accept(h) {
		return Session{}, ErrNameRequired
	}

	s := Session{ConnectionID: uuid.New().String()}

	switch {
	case h.IsGameMaster:
		s.PersistentID = h.PersistentID
		if !strings.HasPrefix(s.PersistentID, PrefixGameMaster) {
			s.PersistentID = PrefixGameMaster + uuid.New().String()
		}
		s.Role = RoleGameMaster
		s.DisplayName = h.DisplayName
		if s.DisplayName == "" {
			s.DisplayName = "GameMaster"
		}

	case h.PersistentID != "":
		s.PersistentID = h.PersistentID
		s.Role = classify(h.PersistentID)
		s.DisplayName = h.DisplayName

	case h.DisplayName != "":
		s.PersistentID = PrefixPlayer + uuid.New().String()
		s.Role = RolePlayer
		s.DisplayName = h.DisplayName

	default:
		s.PersistentID = PrefixFallback + uuid.New().String()
		s.Role = RoleTransient
	}

	return s, nil
}

// accept implements the admission policy: initial connections, GM
// connections, transport-recovered sessions, and named players get in.
func accept(h Handshake) bool {
	return h.IsInitialConnection || h.IsGameMaster || h.Recovered || h.DisplayName != ""
}

// classify maps a cached persistent ID back to its role by prefix.
func classify(pid string) Role {
	switch {
	case strings.HasPrefix(pid, PrefixGameMaster):
		return RoleGameMaster
	case strings.HasPrefix(pid, PrefixPlayer):
		return RolePlayer
	default:
		return RoleTransient
	}
}

// IsGameMasterID reports whether the persistent ID denotes a GM session.
func IsGameMasterID(pid string) bool {
	return strings.HasPrefix(pid, PrefixGameMaster)
}
