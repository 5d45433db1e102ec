package io

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnTransportReadWrite(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ct := NewConnTransport(client)
	done := make(chan error, 1)
	go func() {
		done <- ct.Write(context.Background(), []byte{0x02, 0x00, 0x00, 0x00}, []byte("hi"))
	}()

	buf := make([]byte, 16)
	got := 0
	for got < 6 {
		n, err := server.Read(buf[got:])
		require.NoError(t, err)
		got += n
	}
	require.NoError(t, <-done)
	assert.Equal(t, []byte{0x02, 0x00, 0x00, 0x00, 'h', 'i'}, buf[:6])

	go func() {
		server.Write([]byte("pong"))
	}()
	n, err := ct.Read(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf[:n]))
}

func TestConnTransportEOF(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	ct := NewConnTransport(client)
	server.Close()

	// 对端关闭按零字节无错误上报
	n, err := ct.Read(context.Background(), make([]byte, 8))
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestConnTransportCanceledContext(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ct := NewConnTransport(client)
	_, err := ct.Read(ctx, make([]byte, 8))
	assert.ErrorIs(t, err, context.Canceled)
	err = ct.Write(ctx, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnTransportDeadline(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// 对端不发任何数据，读取必须在截止时间超时而不是永远阻塞
	ct := NewConnTransport(client)
	_, err := ct.Read(ctx, make([]byte, 8))
	require.Error(t, err)
	var netErr net.Error
	assert.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestConnTransportWithTransmitter(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	tx := NewTransmitter(NewConnTransport(client))
	rx := NewTransmitter(NewConnTransport(server))

	payload := patternPayload(2000)
	done := make(chan error, 1)
	go func() {
		done <- tx.Send(context.Background(), payload)
	}()

	got, err := rx.Receive(context.Background())
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, payload, got)
}
