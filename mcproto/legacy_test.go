package mcproto

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utf16be(s string) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, utf16.Encode([]rune(s)))
	return buf.Bytes()
}

func legacyPingBytes(protocol byte, host string, port uint32) []byte {
	var rest bytes.Buffer
	rest.WriteByte(protocol)
	_ = binary.Write(&rest, binary.BigEndian, uint16(len(host)))
	rest.Write(utf16be(host))
	_ = binary.Write(&rest, binary.BigEndian, port)

	var buf bytes.Buffer
	buf.Write([]byte{0xFE, 0x01, 0xFA})
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(legacyPingChannel)))
	buf.Write(utf16be(legacyPingChannel))
	_ = binary.Write(&buf, binary.BigEndian, uint16(rest.Len()))
	buf.Write(rest.Bytes())
	return buf.Bytes()
}

func TestReadPacket_LegacyServerListPing(t *testing.T) {
	reader := bufio.NewReader(bytes.NewReader(legacyPingBytes(74, "mc.example.com", 25565)))

	packet, err := ReadPacket(reader, nil, StateHandshaking)
	require.NoError(t, err)
	require.NotNil(t, packet.Legacy)
	assert.Equal(t, PacketIdLegacyServerListPing, packet.PacketID)
	assert.Equal(t, &LegacyServerListPing{
		ProtocolVersion: 74,
		ServerAddress:   "mc.example.com",
		ServerPort:      25565,
	}, packet.Legacy)
}

func TestReadPacket_LegacyTruncated(t *testing.T) {
	full := legacyPingBytes(74, "mc.example.com", 25565)
	reader := bufio.NewReader(bytes.NewReader(full[:10]))

	_, err := ReadPacket(reader, nil, StateHandshaking)
	assert.Error(t, err)
}

func TestWriteLegacySLPResponse(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLegacySLPResponse(&buf, 127, "1.21", "Sleeping", 1, 100))

	out := buf.Bytes()
	require.Greater(t, len(out), 3)
	assert.Equal(t, byte(0xFF), out[0])

	units := binary.BigEndian.Uint16(out[1:3])
	require.Equal(t, int(units)*2, len(out)-3)

	decoded, err := ReadUTF16BEString(bytes.NewReader(out[3:]), units)
	require.NoError(t, err)
	assert.Equal(t, "§1\x00127\x001.21\x00Sleeping\x001\x00100", decoded)
}
