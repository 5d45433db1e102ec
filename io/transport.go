package io

import (
	"context"
	"io"
	"net"

	"github.com/pkg/errors"
)

// Transport 字节流传输接口，本模块对底层连接的全部要求
//
// Read 用 (0, nil) 表示对端正常关闭，由上层决定是否致命；
// Write 把多段缓冲区作为一次逻辑写入发出，这样包头和大负载
// 不必先拷贝到同一块内存里
type Transport interface {
	Write(ctx context.Context, buffers ...[]byte) error
	Read(ctx context.Context, p []byte) (int, error)
}

// ConnTransport 把 net.Conn 适配成 Transport
// context 带截止时间时转换成连接的读写 deadline；取消只在
// 进入下一次系统调用之前检查
type ConnTransport struct {
	conn net.Conn
}

func NewConnTransport(conn net.Conn) *ConnTransport {
	return &ConnTransport{conn: conn}
}

func (t *ConnTransport) Write(ctx context.Context, buffers ...[]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return errors.Wrap(err, "set write deadline")
	}
	// net.Buffers 在支持的平台上走 writev
	bufs := net.Buffers(buffers)
	if _, err := bufs.WriteTo(t.conn); err != nil {
		return errors.Wrap(err, "transport write")
	}
	return nil
}

func (t *ConnTransport) Read(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	deadline, _ := ctx.Deadline()
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return 0, errors.Wrap(err, "set read deadline")
	}
	n, err := t.conn.Read(p)
	if err == io.EOF {
		return n, nil
	}
	if err != nil {
		return n, errors.Wrap(err, "transport read")
	}
	return n, nil
}
