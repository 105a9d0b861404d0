package mcproto

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// DecodeServerbound turns a raw packet received in the given state into its typed form.
// Only the serverbound packets a status/login front end needs are known.
func DecodeServerbound(state State, raw *RawPacket) (Packet, error) {
	var into Decodable
	switch state {
	case StateHandshaking:
		if raw.Legacy != nil {
			return nil, errors.New("legacy server list ping has no typed form")
		}
		if raw.PacketID == PacketIdHandshake {
			into = &Handshake{}
		}
	case StateStatus:
		switch raw.PacketID {
		case PacketIdStatusRequest:
			into = &StatusRequest{}
		case PacketIdPing:
			into = &Ping{}
		}
	case StateLogin:
		return nil, errors.New("login packets depend on the protocol version, use DecodeLoginStart")
	}
	if into == nil {
		return nil, errors.Errorf("unknown packet id %#02x in %s state", raw.PacketID, state)
	}

	if err := into.decodeBody(bytes.NewReader(raw.Data)); err != nil {
		return nil, err
	}
	return into, nil
}

// DecodeHandshake takes the RawPacket.Data bytes and decodes a Handshake message from it
func DecodeHandshake(data []byte) (*Handshake, error) {
	handshake := &Handshake{}
	if err := handshake.decodeBody(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return handshake, nil
}

// DecodeLoginStart reads a LoginStart body laid out for the given protocol version
func DecodeLoginStart(protocolVersion ProtocolVersion, reader io.Reader) (*LoginStart, error) {
	loginStart := NewLoginStart(protocolVersion)
	var err error

	loginStart.Name, err = ReadString(reader)
	if err != nil {
		return loginStart, errors.Wrap(truncatedOr(err), "failed to read username")
	}

	// These versions can send player keypair data. Ignore it.
	// References:
	// * https://minecraft.wiki/w/Minecraft_Wiki:Projects/wiki.vg_merge/Protocol?oldid=2772902#Login_Start
	if protocolVersion >= ProtocolVersion1_19 && protocolVersion <= ProtocolVersion1_19_2 {
		hasSignatureData, err := ReadBoolean(reader)
		if err != nil {
			return loginStart, errors.Wrap(truncatedOr(err), "failed to read has signature data flag")
		}

		if hasSignatureData {
			if _, err = ReadLong(reader); err != nil { // Expiration time
				return loginStart, errors.Wrap(err, "failed to read expiration time")
			}

			pubKeyLength, err := ReadVarInt(reader)
			if err != nil {
				return loginStart, errors.Wrap(truncatedOr(err), "failed to read public key length")
			}
			if _, err = ReadByteArray(reader, pubKeyLength); err != nil {
				return loginStart, errors.Wrap(err, "failed to read public key")
			}

			signatureLength, err := ReadVarInt(reader)
			if err != nil {
				return loginStart, errors.Wrap(truncatedOr(err), "failed to read signature length")
			}
			if _, err = ReadByteArray(reader, signatureLength); err != nil {
				return loginStart, errors.Wrap(err, "failed to read signature")
			}
		}
	}

	// References:
	// * https://minecraft.wiki/w/Minecraft_Wiki:Projects/wiki.vg_merge/Protocol?oldid=2772944#Login_Start
	switch {
	case protocolVersion >= ProtocolVersion1_19_2 && protocolVersion < ProtocolVersion1_20_2:
		hasUUID, err := ReadBoolean(reader)
		if err != nil {
			return loginStart, errors.Wrap(truncatedOr(err), "failed to read has uuid flag")
		}

		if !hasUUID {
			break
		}
		fallthrough
	case protocolVersion >= ProtocolVersion1_20_2:
		playerUuid, err := ReadUUID(reader)
		if err != nil {
			return loginStart, errors.Wrap(err, "failed to read player uuid")
		}
		loginStart.PlayerUuid = playerUuid
	default:
		// For versions before 1.19.2, the UUID is not present
	}

	return loginStart, nil
}
