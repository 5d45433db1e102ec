package io

import (
	"bytes"
	"compress/zlib"
	"context"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

const (
	// CompressionHeaderSize 压缩包头：3 字节压缩后长度 + 1 字节压缩
	// 序列号 + 3 字节解压后长度
	CompressionHeaderSize = 7

	// MinCompressLength 低于这个长度的负载不值得压缩，原样发送
	// （解压后长度字段置 0）
	MinCompressLength = 50
)

// CompressionAlgorithm 压缩协议协商出来的算法
type CompressionAlgorithm string

const (
	CompressionZlib CompressionAlgorithm = "zlib"
	CompressionZstd CompressionAlgorithm = "zstd"
)

// sequenceResetter 可选接口：带自有序列号的传输层在会话开始时一并清零
type sequenceResetter interface {
	ResetSequence()
}

// CompressedTransport 在任意 Transport 外面套一层 MySQL 压缩协议
//
// 每个压缩包自带 7 字节包头和独立于逻辑包的压缩序列号。压缩序列号
// 随逻辑会话一起清零（Transmitter 通过 ResetSequence 通知）。
// 和 Transmitter 一样不支持并发调用
type CompressedTransport struct {
	inner Transport
	algo  CompressionAlgorithm
	level int
	seq   sequenceCounter

	// 解压出来但还没被上层取走的字节
	pending    []byte
	pendingOff int

	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
}

func NewCompressedTransport(inner Transport, algo CompressionAlgorithm) (*CompressedTransport, error) {
	ct := &CompressedTransport{
		inner: inner,
		algo:  algo,
		level: zlib.DefaultCompression,
	}
	switch algo {
	case CompressionZlib:
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, errors.Wrap(err, "create zstd encoder")
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, errors.Wrap(err, "create zstd decoder")
		}
		ct.zstdEnc = enc
		ct.zstdDec = dec
	default:
		return nil, errors.Errorf("unknown compression algorithm %q", algo)
	}
	return ct, nil
}

// SetLevel 设置 zlib 压缩级别，zstd 不受影响
func (ct *CompressedTransport) SetLevel(level int) {
	ct.level = level
}

// ResetSequence 压缩序列号清零，会话开始时由 Transmitter 调用
func (ct *CompressedTransport) ResetSequence() {
	ct.seq.reset()
}

func (ct *CompressedTransport) Write(ctx context.Context, buffers ...[]byte) error {
	total := 0
	for _, b := range buffers {
		total += len(b)
	}
	if total <= MaxPacketSize {
		return ct.writeFrame(ctx, buffers, total)
	}

	// 一次写入的未压缩内容超过单帧上限（逻辑层的满包带上包头就会
	// 超过）：切成多个压缩帧发出，帧边界对上层不可见，接收端按
	// 字节流拼回去
	frame := make([][]byte, 0, len(buffers))
	room := MaxPacketSize
	for _, b := range buffers {
		for len(b) > 0 {
			n := len(b)
			if n > room {
				n = room
			}
			frame = append(frame, b[:n])
			b = b[n:]
			room -= n
			if room == 0 {
				if err := ct.writeFrame(ctx, frame, MaxPacketSize); err != nil {
					return err
				}
				frame = frame[:0]
				room = MaxPacketSize
			}
		}
	}
	if room < MaxPacketSize {
		return ct.writeFrame(ctx, frame, MaxPacketSize-room)
	}
	return nil
}

// writeFrame 发出一个压缩帧，total 是 buffers 的总字节数，不超过
// 单帧上限
func (ct *CompressedTransport) writeFrame(ctx context.Context, buffers [][]byte, total int) error {
	var header [CompressionHeaderSize]byte
	header[3] = ct.seq.current()
	ct.seq.advance()

	if total >= MinCompressLength {
		compressed, err := ct.compress(buffers)
		if err != nil {
			return err
		}
		// 压得小才用压缩结果，压缩帧的长度因此不会超过 3 字节长度
		// 字段能表示的范围
		if len(compressed) < total {
			putUint24(header[0:3], uint32(len(compressed)))
			putUint24(header[4:7], uint32(total))
			return ct.inner.Write(ctx, header[:], compressed)
		}
	}

	// 太小或者压不小的内容原样跟在包头后面，解压后长度字段保持 0
	putUint24(header[0:3], uint32(total))
	bufs := make([][]byte, 0, len(buffers)+1)
	bufs = append(bufs, header[:])
	bufs = append(bufs, buffers...)
	return ct.inner.Write(ctx, bufs...)
}

func (ct *CompressedTransport) Read(ctx context.Context, p []byte) (int, error) {
	for ct.pendingOff >= len(ct.pending) {
		ok, err := ct.readFrame(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			// 对端干净关闭，维持零字节无错误的约定
			return 0, nil
		}
	}
	n := copy(p, ct.pending[ct.pendingOff:])
	ct.pendingOff += n
	return n, nil
}

// readFrame 读入一个压缩包并解压到 pending，对端在帧边界干净关闭
// 时返回 ok=false
func (ct *CompressedTransport) readFrame(ctx context.Context) (bool, error) {
	var header [CompressionHeaderSize]byte
	got := 0
	for got < CompressionHeaderSize {
		n, err := ct.inner.Read(ctx, header[got:])
		if err != nil {
			return false, err
		}
		if n == 0 {
			if got == 0 {
				return false, nil
			}
			return false, ErrTruncatedPacket
		}
		got += n
	}

	compLen := int(getUint24(header[0:3]))
	seq := header[3]
	uncompLen := int(getUint24(header[4:7]))

	if seq != ct.seq.current() {
		return false, errors.Wrapf(ErrPacketSequence, "compressed packet: got %d, want %d", seq, ct.seq.current())
	}
	ct.seq.advance()

	raw := make([]byte, compLen)
	for rest := raw; len(rest) > 0; {
		n, err := ct.inner.Read(ctx, rest)
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, ErrTruncatedPacket
		}
		rest = rest[n:]
	}

	// 解压后长度为 0 表示这个包没压缩
	if uncompLen == 0 {
		ct.pending = raw
		ct.pendingOff = 0
		return true, nil
	}

	decompressed, err := ct.decompress(raw)
	if err != nil {
		return false, err
	}
	if len(decompressed) != uncompLen {
		return false, errors.Wrapf(ErrInvalidPacket, "compressed packet: %d bytes after decompression, header says %d", len(decompressed), uncompLen)
	}
	ct.pending = decompressed
	ct.pendingOff = 0
	return true, nil
}

func (ct *CompressedTransport) compress(buffers [][]byte) ([]byte, error) {
	if ct.algo == CompressionZstd {
		var src []byte
		if len(buffers) == 1 {
			src = buffers[0]
		} else {
			for _, b := range buffers {
				src = append(src, b...)
			}
		}
		return ct.zstdEnc.EncodeAll(src, nil), nil
	}

	var buf bytes.Buffer
	compressor, err := zlib.NewWriterLevel(&buf, ct.level)
	if err != nil {
		return nil, errors.Wrap(err, "create zlib compressor")
	}
	for _, b := range buffers {
		if _, err := compressor.Write(b); err != nil {
			return nil, errors.Wrap(err, "zlib compress")
		}
	}
	if err := compressor.Close(); err != nil {
		return nil, errors.Wrap(err, "zlib compress")
	}
	return buf.Bytes(), nil
}

func (ct *CompressedTransport) decompress(data []byte) ([]byte, error) {
	if ct.algo == CompressionZstd {
		out, err := ct.zstdDec.DecodeAll(data, nil)
		if err != nil {
			return nil, errors.Wrap(err, "zstd decompress")
		}
		return out, nil
	}

	decompressor, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "zlib decompress")
	}
	defer decompressor.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, decompressor); err != nil {
		return nil, errors.Wrap(err, "zlib decompress")
	}
	return buf.Bytes(), nil
}
