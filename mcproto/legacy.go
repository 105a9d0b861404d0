package mcproto

import (
	"bufio"
	"io"
	"net"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LegacyServerListPing is the pre-1.7 status query, sent without any frame
type LegacyServerListPing struct {
	ProtocolVersion int
	ServerAddress   string
	ServerPort      uint16
}

const legacyPingChannel = "MC|PingHost"

// ReadLegacyServerListPing parses FE 01 FA [channel] [len] [protocol] [host] [port]
func ReadLegacyServerListPing(reader *bufio.Reader, addr net.Addr) (*RawPacket, error) {
	logrus.
		WithField("client", addr).
		Debug("Reading legacy server list ping")

	packetId, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if packetId != PacketIdLegacyServerListPing {
		return nil, errors.Errorf("expected legacy server listing ping packet ID, got %x", packetId)
	}

	payload, err := reader.ReadByte()
	if err != nil {
		return nil, truncatedOr(err)
	}
	if payload != 0x01 {
		return nil, errors.Errorf("expected payload=1 from legacy server listing ping, got %x", payload)
	}

	packetIdForPluginMsg, err := reader.ReadByte()
	if err != nil {
		return nil, truncatedOr(err)
	}
	if packetIdForPluginMsg != 0xFA {
		return nil, errors.Errorf("expected packetIdForPluginMsg=0xFA from legacy server listing ping, got %x", packetIdForPluginMsg)
	}

	channelLen, err := ReadUnsignedShort(reader)
	if err != nil {
		return nil, err
	}
	if int(channelLen) != len(legacyPingChannel) {
		return nil, errors.Errorf("expected channel length %d from legacy server listing ping, got %d",
			len(legacyPingChannel), channelLen)
	}

	channel, err := ReadUTF16BEString(reader, channelLen)
	if err != nil {
		return nil, err
	}
	if channel != legacyPingChannel {
		return nil, errors.Errorf("expected channel=%s, got %s", legacyPingChannel, channel)
	}

	remainingLen, err := ReadUnsignedShort(reader)
	if err != nil {
		return nil, err
	}
	remainingReader := io.LimitReader(reader, int64(remainingLen))

	protocolVersion, err := ReadByte(remainingReader)
	if err != nil {
		return nil, truncatedOr(err)
	}

	hostnameLen, err := ReadUnsignedShort(remainingReader)
	if err != nil {
		return nil, err
	}
	hostname, err := ReadUTF16BEString(remainingReader, hostnameLen)
	if err != nil {
		return nil, err
	}

	port, err := ReadUnsignedInt(remainingReader)
	if err != nil {
		return nil, err
	}

	return &RawPacket{
		PacketID: PacketIdLegacyServerListPing,
		Legacy: &LegacyServerListPing{
			ProtocolVersion: int(protocolVersion),
			ServerAddress:   hostname,
			ServerPort:      uint16(port),
		},
	}, nil
}
