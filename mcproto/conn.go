package mcproto

import (
	"bufio"
	"context"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// Conn owns one stream and speaks whole packets over it. Every read goes through the
// same buffered reader so the stream stays on a packet boundary between calls.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
}

// NewConn takes ownership of conn; closing the Conn closes it
func NewConn(conn net.Conn) *Conn {
	return &Conn{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// NewTeeConn is like NewConn but also copies every byte read from conn into inspection,
// so that the bytes consumed while sniffing can be replayed elsewhere
func NewTeeConn(conn net.Conn, inspection io.Writer) *Conn {
	return &Conn{
		conn:   conn,
		reader: bufio.NewReader(io.TeeReader(conn, inspection)),
	}
}

// Dial connects to address and returns a Conn with TCP_NODELAY set
func Dial(ctx context.Context, address string, timeout time.Duration) (*Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			logrus.WithError(err).WithField("address", address).Debug("Unable to set TCP_NODELAY")
		}
	}
	return NewConn(conn), nil
}

func (c *Conn) SendPacket(packet Packet) error {
	return WritePacket(c.conn, packet)
}

// ReceivePacket reads the next packet, which must have the ID declared by into
func (c *Conn) ReceivePacket(into Decodable) error {
	return ReadInto(c.reader, into)
}

// ReadPacket reads the next packet without decoding its body
func (c *Conn) ReadPacket(state State) (*RawPacket, error) {
	return ReadPacket(c.reader, c.conn.RemoteAddr(), state)
}

// Reader exposes the buffered reader, which may hold bytes already pulled off the stream
func (c *Conn) Reader() io.Reader {
	return c.reader
}

func (c *Conn) Write(p []byte) (int, error) {
	return c.conn.Write(p)
}

func (c *Conn) NetConn() net.Conn {
	return c.conn
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
