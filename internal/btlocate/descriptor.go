package btlocate

import (
	"errors"
	"strings"
)

// ErrNoTarget is returned by Start when the descriptor has no usable
// matcher configured.
var ErrNoTarget = errors.New("target descriptor needs an address, name pattern, or identity key")

// TargetDescriptor identifies which device's observations a session accepts.
// Matching rules, in priority order: resolved identity key, exact address
// (case-insensitive), then case-insensitive name substring. A descriptor is
// pure data; a session holds exactly one, immutable for its lifetime.
type TargetDescriptor struct {
	Address     string `json:"address,omitempty"`
	NamePattern string `json:"name,omitempty"`
	IdentityKey string `json:"identity_key,omitempty"`
}

// Hints are carried over from a hand-off (for example the device table the
// operator selected the target from). They never affect matching.
type Hints struct {
	KnownName         string `json:"known_name,omitempty"`
	KnownManufacturer string `json:"known_manufacturer,omitempty"`
	LastRSSI          *int   `json:"last_rssi,omitempty"`
}

// Validate reports whether the descriptor can match anything at all.
func (t TargetDescriptor) Validate() error {
	if t.Address == "" && t.NamePattern == "" && t.IdentityKey == "" {
		return ErrNoTarget
	}
	return nil
}

// Matches reports whether a raw observation belongs to this target.
func (t TargetDescriptor) Matches(raw RawDetection) bool {
	if t.IdentityKey != "" && raw.Identity != "" {
		return t.IdentityKey == raw.Identity
	}
	if t.Address != "" {
		return strings.EqualFold(t.Address, raw.Address)
	}
	if t.NamePattern != "" {
		if raw.Name == "" {
			return false
		}
		return strings.Contains(strings.ToLower(raw.Name), strings.ToLower(t.NamePattern))
	}
	return false
}
