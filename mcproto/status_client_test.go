package mcproto

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveOneStatus accepts a single connection and answers the status exchange with reply
func serveOneStatus(t *testing.T, reply *StatusResponse) (string, <-chan *Handshake) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	handshakes := make(chan *Handshake, 1)
	go func() {
		netConn, err := listener.Accept()
		if err != nil {
			return
		}
		conn := NewConn(netConn)
		defer conn.Close()

		handshake := &Handshake{}
		if err := conn.ReceivePacket(handshake); err != nil {
			return
		}
		handshakes <- handshake
		if err := conn.ReceivePacket(&StatusRequest{}); err != nil {
			return
		}
		_ = conn.SendPacket(reply)
	}()

	return listener.Addr().String(), handshakes
}

func TestStatusClient_Query(t *testing.T) {
	address, handshakes := serveOneStatus(t, &StatusResponse{
		Version:     StatusVersion{Name: "1.21", Protocol: 767},
		Players:     StatusPlayers{Max: 20, Online: 3},
		Description: Text("backend"),
	})

	client := NewStatusClient(2 * time.Second)
	status, err := client.Query(context.Background(), address)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Players.Online)
	assert.Equal(t, "backend", status.Description.PlainText())

	handshake := <-handshakes
	assert.Equal(t, StateStatus, handshake.NextState)
	assert.Equal(t, "127.0.0.1", handshake.ServerAddress)
}

func TestStatusClient_Unreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := listener.Addr().String()
	require.NoError(t, listener.Close())

	_, err = NewStatusClient(500*time.Millisecond).Query(context.Background(), address)
	assert.Error(t, err)
}

func TestStatusClient_ServerHangsUp(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err == nil {
			_ = conn.Close()
		}
	}()

	_, err = NewStatusClient(time.Second).Query(context.Background(), listener.Addr().String())
	assert.Error(t, err)
}

func TestStatusClient_InvalidAddress(t *testing.T) {
	_, err := NewStatusClient(time.Second).Query(context.Background(), "no-port")
	assert.Error(t, err)
}
