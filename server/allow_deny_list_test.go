package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowDenyConfig_AllowsPlayer(t *testing.T) {
	validUserInfo := &PlayerInfo{
		Name: "player_name",
		Uuid: uuid.MustParse("53036a8f-cbc8-4074-bbc5-98e5e19b0b14"),
	}
	otherUserInfo := &PlayerInfo{
		Name: "other_player",
		Uuid: uuid.MustParse("0d51a0ca-f498-44bf-813f-635c18594b8c"),
	}
	tests := []struct {
		name            string
		allowDenyConfig *AllowDenyConfig
		player          *PlayerInfo
		want            bool
	}{
		{
			name:            "nil config",
			allowDenyConfig: nil,
			player:          validUserInfo,
			want:            true,
		},
		{
			name:            "empty config",
			allowDenyConfig: &AllowDenyConfig{},
			player:          validUserInfo,
			want:            true,
		},
		{
			name: "impossible allowlist",
			allowDenyConfig: &AllowDenyConfig{
				Allowlist: []PlayerInfo{{Name: "", Uuid: uuid.Nil}},
			},
			player: validUserInfo,
			want:   false,
		},
		{
			name: "player allowed",
			allowDenyConfig: &AllowDenyConfig{
				Allowlist: []PlayerInfo{*validUserInfo},
			},
			player: validUserInfo,
			want:   true,
		},
		{
			name: "player not in allowlist",
			allowDenyConfig: &AllowDenyConfig{
				Allowlist: []PlayerInfo{*otherUserInfo},
			},
			player: validUserInfo,
			want:   false,
		},
		{
			name: "player denied",
			allowDenyConfig: &AllowDenyConfig{
				Denylist: []PlayerInfo{*validUserInfo},
			},
			player: validUserInfo,
			want:   false,
		},
		{
			name: "player allowed and denied",
			allowDenyConfig: &AllowDenyConfig{
				Allowlist: []PlayerInfo{*validUserInfo},
				Denylist:  []PlayerInfo{*validUserInfo},
			},
			player: validUserInfo,
			want:   true,
		},
		{
			name: "allowed by name only",
			allowDenyConfig: &AllowDenyConfig{
				Allowlist: []PlayerInfo{{Name: "player_name"}},
			},
			player: validUserInfo,
			want:   true,
		},
		{
			name: "denied by uuid only",
			allowDenyConfig: &AllowDenyConfig{
				Denylist: []PlayerInfo{{Uuid: validUserInfo.Uuid}},
			},
			player: validUserInfo,
			want:   false,
		},
		{
			name: "name matches but uuid differs",
			allowDenyConfig: &AllowDenyConfig{
				Allowlist: []PlayerInfo{{Name: "player_name", Uuid: otherUserInfo.Uuid}},
			},
			player: validUserInfo,
			want:   false,
		},
		{
			name: "unknown player with lists configured",
			allowDenyConfig: &AllowDenyConfig{
				Denylist: []PlayerInfo{*otherUserInfo},
			},
			player: nil,
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.allowDenyConfig.AllowsPlayer(tt.player))
		})
	}
}

func TestParseAllowDenyConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allow-deny.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"allowlist": [{"name": "steve"}, {"uuid": "0d51a0ca-f498-44bf-813f-635c18594b8c"}],
		"denylist": [{"name": "griefer"}]
	}`), 0o644))

	config, err := ParseAllowDenyConfig(path)
	require.NoError(t, err)
	assert.Len(t, config.Allowlist, 2)
	assert.Equal(t, "steve", config.Allowlist[0].Name)
	assert.Equal(t, uuid.MustParse("0d51a0ca-f498-44bf-813f-635c18594b8c"), config.Allowlist[1].Uuid)
	assert.Equal(t, []PlayerInfo{{Name: "griefer"}}, config.Denylist)

	_, err = ParseAllowDenyConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
