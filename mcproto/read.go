package mcproto

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"net"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// MaxVarIntBytes is the longest encoding of a 32-bit VarInt
const MaxVarIntBytes = 5

// maxStringBytes is the protocol limit of 32767 UTF-16 code units, each at most 3 UTF-8 bytes
const maxStringBytes = 32767 * 3

// ReadPacket reads one frame and decodes its packet ID. While handshaking, a leading 0xFE
// is taken as a legacy server list ping, which is why the reader must be buffered.
func ReadPacket(reader *bufio.Reader, addr net.Addr, state State) (*RawPacket, error) {
	logrus.
		WithField("client", addr).
		Debug("Reading packet")

	if state == StateHandshaking {
		data, err := reader.Peek(1)
		if err != nil {
			return nil, err
		}

		if data[0] == PacketIdLegacyServerListPing {
			return ReadLegacyServerListPing(reader, addr)
		}
	}

	frame, err := ReadFrame(reader, addr)
	if err != nil {
		return nil, err
	}

	packet := &RawPacket{Length: frame.Length + VarIntSize(uint32(frame.Length))}

	remainder := bytes.NewBuffer(frame.Payload)

	packet.PacketID, err = ReadVarInt(remainder)
	if err != nil {
		return nil, err
	}

	packet.Data = remainder.Bytes()

	logrus.
		WithField("client", addr).
		WithField("packet", packet).
		Debug("Read packet")
	return packet, nil
}

// ReadFrame reads a VarInt length prefix and exactly that many bytes. A stream that is
// already at its end yields io.EOF; one that ends inside the frame yields ErrTruncated.
func ReadFrame(reader io.Reader, addr net.Addr) (*Frame, error) {
	var err error
	frame := &Frame{}

	frame.Length, err = ReadVarInt(reader)
	if err != nil {
		return nil, err
	}

	if frame.Length < 0 || frame.Length > MaxFrameLength {
		return nil, errors.Wrapf(ErrFrameTooLarge, "length %d", frame.Length)
	}

	logrus.
		WithField("client", addr).
		WithField("length", frame.Length).
		Debug("Read frame length")

	frame.Payload = make([]byte, frame.Length)
	if _, err := io.ReadFull(reader, frame.Payload); err != nil {
		return nil, errors.Wrapf(truncatedOr(err), "reading %d byte frame", frame.Length)
	}

	logrus.
		WithField("client", addr).
		WithField("frame", frame).
		Trace("Read frame")
	return frame, nil
}

// ReadInto reads the next frame, checks that its packet ID is the one declared by into,
// and decodes the body into it.
func ReadInto(reader io.Reader, into Decodable) error {
	frame, err := ReadFrame(reader, nil)
	if err != nil {
		return err
	}

	body := bytes.NewReader(frame.Payload)
	packetID, err := ReadVarInt(body)
	if err != nil {
		return errors.Wrap(err, "failed to read packet id")
	}
	if packetID != into.PacketID() {
		return &UnexpectedPacketIDError{Expected: into.PacketID(), Actual: packetID}
	}

	return into.decodeBody(body)
}

// ReadVarInt decodes a VarInt and returns it as the signed 32-bit value it represents
func ReadVarInt(reader io.Reader) (int, error) {
	var result uint32
	for numRead := 0; numRead < MaxVarIntBytes; numRead++ {
		b, err := ReadByte(reader)
		if err != nil {
			if err == io.EOF && numRead > 0 {
				return 0, ErrTruncated
			}
			return 0, err
		}

		// only the low four bits of the fifth byte fit in 32 bits
		if numRead == MaxVarIntBytes-1 && b&0x70 != 0 {
			return 0, ErrMalformedVarInt
		}
		result |= uint32(b&0x7F) << (7 * numRead)

		if b&0x80 == 0 {
			return int(int32(result)), nil
		}
	}

	return 0, ErrMalformedVarInt
}

func ReadString(reader io.Reader) (string, error) {
	length, err := ReadVarInt(reader)
	if err != nil {
		return "", err
	}
	if length < 0 || length > maxStringBytes {
		return "", errors.Errorf("string length %d out of range", length)
	}

	b, err := ReadByteArray(reader, length)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func ReadByteArray(reader io.Reader, length int) ([]byte, error) {
	if length < 0 {
		return nil, errors.Errorf("negative array length %d", length)
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(reader, b); err != nil {
		return nil, truncatedOr(err)
	}
	return b, nil
}

func ReadByte(reader io.Reader) (byte, error) {
	if br, ok := reader.(io.ByteReader); ok {
		return br.ReadByte()
	}
	var buf [1]byte
	_, err := io.ReadFull(reader, buf[:])
	return buf[0], err
}

func ReadBoolean(reader io.Reader) (bool, error) {
	b, err := ReadByte(reader)
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func ReadUnsignedShort(reader io.Reader) (uint16, error) {
	var value uint16
	err := binary.Read(reader, binary.BigEndian, &value)
	if err != nil {
		return 0, truncatedOr(err)
	}
	return value, nil
}

func ReadUnsignedInt(reader io.Reader) (uint32, error) {
	var value uint32
	err := binary.Read(reader, binary.BigEndian, &value)
	if err != nil {
		return 0, truncatedOr(err)
	}
	return value, nil
}

func ReadLong(reader io.Reader) (int64, error) {
	var value int64
	err := binary.Read(reader, binary.BigEndian, &value)
	if err != nil {
		return 0, truncatedOr(err)
	}
	return value, nil
}

func ReadUUID(reader io.Reader) (uuid.UUID, error) {
	buf, err := ReadByteArray(reader, 16)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(buf)
}

// ReadUTF16BEString reads symbolLen UTF-16BE code units, as used by the legacy ping
func ReadUTF16BEString(reader io.Reader, symbolLen uint16) (string, error) {
	bsUtf16be, err := ReadByteArray(reader, int(symbolLen)*2)
	if err != nil {
		return "", err
	}

	result, _, err := transform.Bytes(unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder(), bsUtf16be)
	if err != nil {
		return "", err
	}

	return string(result), nil
}

// truncatedOr maps the EOF flavors binary.Read returns onto ErrTruncated
func truncatedOr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrTruncated
	}
	return err
}
