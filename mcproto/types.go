package mcproto

import "fmt"

// Frame is one length-prefixed unit read off the wire, before the packet ID is decoded
type Frame struct {
	Length  int
	Payload []byte
}

var trimLimit = 64

func trimBytes(data []byte) ([]byte, string) {
	if len(data) < trimLimit {
		return data, ""
	} else {
		return data[:trimLimit], "..."
	}
}

func (f *Frame) String() string {
	trimmed, cont := trimBytes(f.Payload)
	return fmt.Sprintf("Frame:[len=%d, payload=%#X%s]", f.Length, trimmed, cont)
}

// RawPacket is a frame with its packet ID decoded and the body left as bytes.
// Legacy is only set for a pre-netty server list ping, which has no frame.
type RawPacket struct {
	Length   int
	PacketID int
	Data     []byte
	Legacy   *LegacyServerListPing
}

func (p *RawPacket) String() string {
	if p.Legacy != nil {
		return fmt.Sprintf("LegacyPing:[protocol=%d, host=%s, port=%d]",
			p.Legacy.ProtocolVersion, p.Legacy.ServerAddress, p.Legacy.ServerPort)
	}
	trimmed, cont := trimBytes(p.Data)
	return fmt.Sprintf("Packet:[len=%d, packetId=%d, data=%#X%s]", p.Length, p.PacketID, trimmed, cont)
}

// State is the connection state selected by the handshake
type State int

const (
	StateHandshaking State = 0
	StateStatus      State = 1
	StateLogin       State = 2
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateStatus:
		return "status"
	case StateLogin:
		return "login"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

type ProtocolVersion int

const (
	ProtocolVersion1_19   ProtocolVersion = 759
	ProtocolVersion1_19_2 ProtocolVersion = 760
	ProtocolVersion1_20_2 ProtocolVersion = 764
	ProtocolVersion1_21   ProtocolVersion = 767
)

const (
	PacketIdHandshake       = 0x00
	PacketIdStatusRequest   = 0x00
	PacketIdStatusResponse  = 0x00
	PacketIdPing            = 0x01
	PacketIdLoginDisconnect = 0x00
	PacketIdLoginStart      = 0x00

	PacketIdLegacyServerListPing = 0xFE
)

// MaxFrameLength is the largest frame the vanilla server accepts, 2^21 - 1
const MaxFrameLength = 2097151
