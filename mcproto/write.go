package mcproto

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"strconv"
	"unicode/utf16"

	"github.com/google/uuid"
)

// AppendVarInt appends the minimal VarInt encoding of value to b
func AppendVarInt(b []byte, value uint32) []byte {
	for {
		temp := byte(value & 0x7F)
		value >>= 7
		if value != 0 {
			temp |= 0x80
		}
		b = append(b, temp)
		if value == 0 {
			return b
		}
	}
}

// VarIntSize is the number of bytes AppendVarInt produces for value
func VarIntSize(value uint32) int {
	size := 1
	for value >= 0x80 {
		value >>= 7
		size++
	}
	return size
}

// WriteVarInt writes a VarInt (Minecraft format) to w. Negative values use all five bytes.
func WriteVarInt(w io.Writer, value int32) error {
	var buf [MaxVarIntBytes]byte
	_, err := w.Write(AppendVarInt(buf[:0], uint32(value)))
	return err
}

// WriteString writes a Minecraft length-prefixed UTF-8 string
func WriteString(w io.Writer, s string) error {
	if err := WriteVarInt(w, int32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func WriteUnsignedShort(w io.Writer, value uint16) error {
	return binary.Write(w, binary.BigEndian, value)
}

func WriteBoolean(w io.Writer, value bool) error {
	b := byte(0)
	if value {
		b = 1
	}
	_, err := w.Write([]byte{b})
	return err
}

func WriteUUID(w io.Writer, id uuid.UUID) error {
	_, err := w.Write(id[:])
	return err
}

// EncodePacket builds a framed packet: [length VarInt][packetId VarInt][body]
func EncodePacket(packet Packet) ([]byte, error) {
	var body bytes.Buffer
	_ = WriteVarInt(&body, int32(packet.PacketID()))
	if err := packet.encodeBody(&body); err != nil {
		return nil, err
	}

	framed := make([]byte, 0, VarIntSize(uint32(body.Len()))+body.Len())
	framed = AppendVarInt(framed, uint32(body.Len()))
	framed = append(framed, body.Bytes()...)
	return framed, nil
}

// WritePacket encodes the packet and writes the whole frame with a single Write
func WritePacket(w io.Writer, packet Packet) error {
	framed, err := EncodePacket(packet)
	if err != nil {
		return err
	}
	_, err = w.Write(framed)
	return err
}

// WriteLegacySLPResponse writes the 1.6-compatible legacy response packet (0xFF)
// Format: FF, [length short], UTF16BE string beginning with "§1\u0000" then null-delimited fields
// fields: protocol, version, motd, online, max
func WriteLegacySLPResponse(w io.Writer, protocol int, version string, motd string, online int, max int) error {
	s := "§1\u0000" +
		strconv.Itoa(protocol) + "\u0000" +
		version + "\u0000" +
		motd + "\u0000" +
		strconv.Itoa(online) + "\u0000" +
		strconv.Itoa(max)

	encoded := utf16.Encode([]rune(s))

	bw := bufio.NewWriter(w)
	if err := bw.WriteByte(0xFF); err != nil {
		return err
	}
	// length is in UTF-16 code units, not bytes
	if err := binary.Write(bw, binary.BigEndian, uint16(len(encoded))); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, encoded); err != nil {
		return err
	}
	return bw.Flush()
}
