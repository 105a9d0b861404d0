package mcproto

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Packet is implemented only by the packet types of this package. Each type declares its ID,
// and the set is closed so that DecodeServerbound can switch over it exhaustively.
type Packet interface {
	PacketID() int
	encodeBody(w *bytes.Buffer) error
}

// Decodable is a Packet that can be read back with ReadInto or Conn.ReceivePacket
type Decodable interface {
	Packet
	decodeBody(r *bytes.Reader) error
}

type Handshake struct {
	ProtocolVersion ProtocolVersion
	ServerAddress   string
	ServerPort      uint16
	NextState       State
}

func (*Handshake) PacketID() int { return PacketIdHandshake }

func (h *Handshake) encodeBody(w *bytes.Buffer) error {
	_ = WriteVarInt(w, int32(h.ProtocolVersion))
	_ = WriteString(w, h.ServerAddress)
	_ = WriteUnsignedShort(w, h.ServerPort)
	return WriteVarInt(w, int32(h.NextState))
}

func (h *Handshake) decodeBody(r *bytes.Reader) error {
	protocolVersion, err := ReadVarInt(r)
	if err != nil {
		return errors.Wrap(truncatedOr(err), "failed to read protocol version")
	}
	h.ProtocolVersion = ProtocolVersion(protocolVersion)

	h.ServerAddress, err = ReadString(r)
	if err != nil {
		return errors.Wrap(truncatedOr(err), "failed to read server address")
	}

	h.ServerPort, err = ReadUnsignedShort(r)
	if err != nil {
		return errors.Wrap(err, "failed to read server port")
	}

	nextState, err := ReadVarInt(r)
	if err != nil {
		return errors.Wrap(truncatedOr(err), "failed to read next state")
	}
	h.NextState = State(nextState)
	return nil
}

type StatusRequest struct{}

func (*StatusRequest) PacketID() int { return PacketIdStatusRequest }

func (*StatusRequest) encodeBody(*bytes.Buffer) error { return nil }

func (*StatusRequest) decodeBody(*bytes.Reader) error { return nil }

// Ping is the status-state ping/pong; the server echoes the payload back unchanged
type Ping struct {
	Payload uint64
}

func (*Ping) PacketID() int { return PacketIdPing }

func (p *Ping) encodeBody(w *bytes.Buffer) error {
	return binary.Write(w, binary.LittleEndian, p.Payload)
}

func (p *Ping) decodeBody(r *bytes.Reader) error {
	if err := binary.Read(r, binary.LittleEndian, &p.Payload); err != nil {
		return errors.Wrap(truncatedOr(err), "failed to read ping payload")
	}
	return nil
}

type StatusVersion struct {
	Name     string `json:"name"`
	Protocol int    `json:"protocol"`
}

type PlayerEntry struct {
	Name string    `json:"name"`
	ID   uuid.UUID `json:"id"`
}

type StatusPlayers struct {
	Max    int           `json:"max"`
	Online int           `json:"online"`
	Sample []PlayerEntry `json:"sample,omitempty"`
}

type ModInfo struct {
	Type    string   `json:"type"`
	ModList []string `json:"modList"`
}

// StatusResponse is carried on the wire as a single JSON string
type StatusResponse struct {
	Version            StatusVersion `json:"version"`
	Players            StatusPlayers `json:"players"`
	Description        TextComponent `json:"description"`
	Favicon            string        `json:"favicon,omitempty"`
	ModInfo            *ModInfo      `json:"modinfo,omitempty"`
	EnforcesSecureChat *bool         `json:"enforcesSecureChat,omitempty"`
}

func (*StatusResponse) PacketID() int { return PacketIdStatusResponse }

func (s *StatusResponse) encodeBody(w *bytes.Buffer) error {
	return writeJSONString(w, s)
}

func (s *StatusResponse) decodeBody(r *bytes.Reader) error {
	return readJSONString(r, s, "status response")
}

// LoginDisconnect is the login-state disconnect carrying the reason shown to the player
type LoginDisconnect struct {
	Reason TextComponent
}

func (*LoginDisconnect) PacketID() int { return PacketIdLoginDisconnect }

func (d *LoginDisconnect) encodeBody(w *bytes.Buffer) error {
	return writeJSONString(w, d.Reason)
}

func (d *LoginDisconnect) decodeBody(r *bytes.Reader) error {
	return readJSONString(r, &d.Reason, "disconnect reason")
}

// LoginStart is the first login-state packet. Its layout depends on the protocol version
// announced in the handshake, so ProtocolVersion must be set before decoding.
type LoginStart struct {
	ProtocolVersion ProtocolVersion
	Name            string
	PlayerUuid      uuid.UUID
}

func NewLoginStart(protocolVersion ProtocolVersion) *LoginStart {
	return &LoginStart{ProtocolVersion: protocolVersion}
}

func (*LoginStart) PacketID() int { return PacketIdLoginStart }

func (l *LoginStart) encodeBody(w *bytes.Buffer) error {
	_ = WriteString(w, l.Name)
	if l.ProtocolVersion >= ProtocolVersion1_19 && l.ProtocolVersion <= ProtocolVersion1_19_2 {
		// no signature data
		_ = WriteBoolean(w, false)
	}
	switch {
	case l.ProtocolVersion >= ProtocolVersion1_20_2:
		return WriteUUID(w, l.PlayerUuid)
	case l.ProtocolVersion >= ProtocolVersion1_19_2:
		if l.PlayerUuid == uuid.Nil {
			return WriteBoolean(w, false)
		}
		_ = WriteBoolean(w, true)
		return WriteUUID(w, l.PlayerUuid)
	}
	return nil
}

func (l *LoginStart) decodeBody(r *bytes.Reader) error {
	decoded, err := DecodeLoginStart(l.ProtocolVersion, r)
	if err != nil {
		return err
	}
	*l = *decoded
	return nil
}

func writeJSONString(w *bytes.Buffer, v interface{}) error {
	content, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to marshal json body")
	}
	_ = WriteVarInt(w, int32(len(content)))
	_, err = w.Write(content)
	return err
}

func readJSONString(r io.Reader, v interface{}, what string) error {
	content, err := ReadString(r)
	if err != nil {
		return errors.Wrapf(truncatedOr(err), "failed to read %s", what)
	}
	if err := json.Unmarshal([]byte(content), v); err != nil {
		return errors.Wrapf(err, "malformed %s", what)
	}
	return nil
}
