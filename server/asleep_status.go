package server

import (
	"encoding/base64"
	"os"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/s7tya/managed-minecraft-server/mcproto"
)

// AsleepStatus is what the server list shows while the backend is not being proxied.
// It is also the schema of the asleep status config file, where every field is optional.
type AsleepStatus struct {
	Description         mcproto.TextComponent  `json:"description"`
	StartingDescription *mcproto.TextComponent `json:"startingDescription,omitempty"`
	VersionName         string                 `json:"versionName"`
	Protocol            int                    `json:"protocol"`
	MaxPlayers          int                    `json:"maxPlayers"`
	OnlinePlayers       int                    `json:"onlinePlayers"`
	Favicon             string                 `json:"favicon,omitempty"`
}

// NewAsleepStatus takes the flag defaults, loading the favicon file if one is named
func NewAsleepStatus(config *AsleepConfig) (*AsleepStatus, error) {
	status := &AsleepStatus{
		Description:   mcproto.Text(config.MOTD),
		VersionName:   config.VersionName,
		Protocol:      config.Protocol,
		MaxPlayers:    config.MaxPlayers,
		OnlinePlayers: config.OnlinePlayers,
	}
	if config.StartingMOTD != "" {
		starting := mcproto.Text(config.StartingMOTD)
		status.StartingDescription = &starting
	}
	if config.Favicon != "" {
		favicon, err := LoadFavicon(config.Favicon)
		if err != nil {
			return nil, err
		}
		status.Favicon = favicon
	}
	return status, nil
}

// LoadFavicon reads a PNG file into the data URI the status response carries
func LoadFavicon(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "could not read favicon")
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(content), nil
}

// StatusResponse renders the status for the given state
func (s *AsleepStatus) StatusResponse(state ProxyState) *mcproto.StatusResponse {
	description := s.Description
	if state == Starting && s.StartingDescription != nil {
		description = *s.StartingDescription
	}
	return &mcproto.StatusResponse{
		Version: mcproto.StatusVersion{
			Name:     s.VersionName,
			Protocol: s.Protocol,
		},
		Players: mcproto.StatusPlayers{
			Max:    s.MaxPlayers,
			Online: s.OnlinePlayers,
		},
		Description: description,
		Favicon:     s.Favicon,
	}
}

// asleepResponder holds the current AsleepStatus, swapped as a whole on reload
type asleepResponder struct {
	current atomic.Pointer[AsleepStatus]
}

func newAsleepResponder(status *AsleepStatus) *asleepResponder {
	r := &asleepResponder{}
	r.current.Store(status)
	return r
}

func (r *asleepResponder) Status() *AsleepStatus {
	return r.current.Load()
}

func (r *asleepResponder) Set(status *AsleepStatus) {
	r.current.Store(status)
}

// respondStatus answers the status exchange on conn, whose handshake was already read:
// StatusRequest, then the synthetic StatusResponse, then the ping echo
func (r *asleepResponder) respondStatus(conn *mcproto.Conn, state ProxyState) error {
	if err := conn.ReceivePacket(&mcproto.StatusRequest{}); err != nil {
		return errors.Wrap(err, "failed to read status request")
	}

	if err := conn.SendPacket(r.Status().StatusResponse(state)); err != nil {
		return errors.Wrap(err, "failed to send status response")
	}

	ping := &mcproto.Ping{}
	if err := conn.ReceivePacket(ping); err != nil {
		return errors.Wrap(err, "failed to read ping")
	}
	return errors.Wrap(conn.SendPacket(ping), "failed to send pong")
}

func (r *asleepResponder) respondLegacy(conn *mcproto.Conn) error {
	status := r.Status()
	return mcproto.WriteLegacySLPResponse(conn, status.Protocol, status.VersionName,
		status.Description.PlainText(), status.OnlinePlayers, status.MaxPlayers)
}
