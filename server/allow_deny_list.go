package server

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// PlayerInfo identifies a player by the name and UUID sent in LoginStart
type PlayerInfo struct {
	Name string    `json:"name"`
	Uuid uuid.UUID `json:"uuid"`
}

// AllowDenyConfig decides which players may wake the backend.
// An entry with both name and UUID must match both; an entry with neither never matches.
type AllowDenyConfig struct {
	Allowlist []PlayerInfo `json:"allowlist"`
	Denylist  []PlayerInfo `json:"denylist"`
}

func ParseAllowDenyConfig(allowDenyListPath string) (*AllowDenyConfig, error) {
	data, err := os.ReadFile(allowDenyListPath)
	if err != nil {
		return nil, errors.Wrap(err, "could not read allow/deny list")
	}
	allowDenyConfig := &AllowDenyConfig{}
	if err := json.Unmarshal(data, allowDenyConfig); err != nil {
		return nil, errors.Wrap(err, "could not parse allow/deny list")
	}
	return allowDenyConfig, nil
}

func entryMatchesPlayer(entry *PlayerInfo, player *PlayerInfo) bool {
	switch {
	case entry.Name == "" && entry.Uuid == uuid.Nil:
		return false
	case entry.Name != "" && entry.Uuid != uuid.Nil:
		return *entry == *player
	case entry.Uuid != uuid.Nil:
		return entry.Uuid == player.Uuid
	default:
		return entry.Name == player.Name
	}
}

// AllowsPlayer is true for players on a non-empty allowlist. With an empty allowlist
// every player not on the denylist is allowed.
func (c *AllowDenyConfig) AllowsPlayer(player *PlayerInfo) bool {
	if c == nil {
		return true
	}
	if player == nil {
		return len(c.Allowlist) == 0 && len(c.Denylist) == 0
	}

	for i := range c.Allowlist {
		if entryMatchesPlayer(&c.Allowlist[i], player) {
			return true
		}
	}
	if len(c.Allowlist) > 0 {
		return false
	}

	for i := range c.Denylist {
		if entryMatchesPlayer(&c.Denylist[i], player) {
			return false
		}
	}
	return true
}
