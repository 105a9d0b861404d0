package mcproto

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

var (
	// ErrMalformedVarInt is returned when a VarInt keeps its continuation bit set past five bytes
	ErrMalformedVarInt = errors.New("VarInt is too big")
	// ErrTruncated is returned when the stream ends in the middle of a VarInt or frame
	ErrTruncated = fmt.Errorf("stream ended mid-packet: %w", io.ErrUnexpectedEOF)
	// ErrFrameTooLarge is returned for a length prefix above MaxFrameLength
	ErrFrameTooLarge = errors.New("frame length too large")
	// ErrUnsupportedNextState is returned for a handshake whose next state is neither status nor login
	ErrUnsupportedNextState = errors.New("unsupported handshake next state")
)

// UnexpectedPacketIDError reports a frame whose packet ID did not match the kind the caller asked for
type UnexpectedPacketIDError struct {
	Expected int
	Actual   int
}

func (e *UnexpectedPacketIDError) Error() string {
	return fmt.Sprintf("unexpected packet id %#02x, expected %#02x", e.Actual, e.Expected)
}
