package io

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	// HeaderSize 包头长度：3 字节小端负载长度 + 1 字节序列号
	HeaderSize = 4
	// MaxPacketSize 单个包负载的协议上限 (2^24 - 1)
	MaxPacketSize = 0xffffff
	// DefaultBufferSize 工作缓冲区的初始大小
	DefaultBufferSize = 16 * 1024
)

// Transmitter 负责 MySQL 协议的封包、拆包和会话序列号管理
//
// 一个 Transmitter 绑定一个 Transport。协议本身是半双工的一问一答，
// 所以不支持并发调用，调用方必须串行使用（同一时刻最多一个在途操作）。
//
// Receive 系列方法返回的负载可能借用内部工作缓冲区，只在对同一个
// Transmitter 的下一次调用之前有效，需要长期保留时调用方必须自行拷贝。
//
// 任何错误（传输失败、对端断开、序列号错乱）之后会话状态和对端
// 不再一致，这个 Transmitter 连同底层连接都应当废弃，由上层重连。
type Transmitter struct {
	transport Transport
	buf       *workingBuffer
	seq       sequenceCounter

	maxPacketSize int

	id     string
	logger zerolog.Logger
}

func NewTransmitter(transport Transport) *Transmitter {
	return &Transmitter{
		transport:     transport,
		buf:           newWorkingBuffer(DefaultBufferSize),
		maxPacketSize: MaxPacketSize,
		id:            uuid.NewString(),
		logger:        zerolog.Nop(),
	}
}

// ID 返回这个 Transmitter 的标识，用于日志关联
func (t *Transmitter) ID() string {
	return t.id
}

// SetLogger 启用包级别的 trace 日志，默认不打日志
func (t *Transmitter) SetLogger(logger zerolog.Logger) {
	t.logger = logger.With().Str("transmitter", t.id).Logger()
}

// SetMaxPacketSize 设置单包负载上限，超出协议上限时取协议上限
// 客户端和服务端协商出较小的 max_allowed_packet 时使用
func (t *Transmitter) SetMaxPacketSize(size int) {
	if size <= 0 || size > MaxPacketSize {
		size = MaxPacketSize
	}
	t.maxPacketSize = size
}

// SetBufferSize 重建工作缓冲区，只能在没有未消费数据时调用
func (t *Transmitter) SetBufferSize(size int) {
	if t.buf.unreadLen() == 0 {
		t.buf = newWorkingBuffer(size)
	}
}

// Send 开启一个新会话并发送一个完整负载（序列号清零）
func (t *Transmitter) Send(ctx context.Context, payload []byte) error {
	t.resetSequence()
	return t.sendPayload(ctx, payload)
}

// SendReply 在当前会话内继续发送（序列号不清零）
func (t *Transmitter) SendReply(ctx context.Context, payload []byte) error {
	return t.sendPayload(ctx, payload)
}

// Receive 开启一个新会话并接收一个完整负载（序列号清零）
func (t *Transmitter) Receive(ctx context.Context) ([]byte, error) {
	t.resetSequence()
	payload, _, err := t.receivePayload(ctx, false)
	return payload, err
}

// ReceiveReply 在当前会话内接收一个完整负载
func (t *Transmitter) ReceiveReply(ctx context.Context) ([]byte, error) {
	payload, _, err := t.receivePayload(ctx, false)
	return payload, err
}

// TryReceiveReply 试探性接收：对端没有回包（连接干净关闭或者下一个
// 包不属于当前会话）时返回 ok=false 而不是报错。对端在包中途断开
// 仍然是致命错误。零长度负载返回 ([]byte{}, true, nil)，和没有回包
// 是两种不同的结果
func (t *Transmitter) TryReceiveReply(ctx context.Context) (payload []byte, ok bool, err error) {
	return t.receivePayload(ctx, true)
}

// resetSequence 会话开始，本层序列号清零；传输层（比如压缩层）带
// 自有序列号的一并清零
func (t *Transmitter) resetSequence() {
	t.seq.reset()
	if r, ok := t.transport.(sequenceResetter); ok {
		r.ResetSequence()
	}
}

// sendPayload 把一个逻辑负载拆成若干个包发出
//
// 每个包最多 maxPacketSize 字节。最后一个包必须严格小于单包上限，
// 负载长度恰好是上限整数倍（含 0）时补一个空包收尾，对端靠这个
// 区分"后面还有"和"传输完毕"
func (t *Transmitter) sendPayload(ctx context.Context, payload []byte) error {
	var header [HeaderSize]byte
	for {
		n := len(payload)
		if n > t.maxPacketSize {
			n = t.maxPacketSize
		}
		putUint24(header[0:3], uint32(n))
		header[3] = t.seq.current()
		t.seq.advance()

		t.logger.Trace().Uint8("seq", header[3]).Int("len", n).Msg("send packet")

		var err error
		if n > 0 {
			// 包头和负载分两段交给传输层，大负载不经过工作缓冲区
			err = t.transport.Write(ctx, header[:], payload[:n])
		} else {
			err = t.transport.Write(ctx, header[:])
		}
		if err != nil {
			return err
		}
		payload = payload[n:]
		if n < t.maxPacketSize {
			return nil
		}
	}
}

// packetBody 单个包的负载
// owned 为 true 时 data 是独立分配的缓冲区，重组逻辑可以直接接管；
// 否则 data 借用工作缓冲区，下一次收发之前必须用完
type packetBody struct {
	data  []byte
	owned bool
}

// readPacket 读取并校验一个包，返回其负载
//
// optional 模式下，对端在任何包头字节到达之前干净关闭连接、或者
// 包头序列号不属于当前会话时，按"没有回包"处理（ok=false，不消费
// 数据、不推进序列号）；包头校验通过之后的任何断流都是致命的
func (t *Transmitter) readPacket(ctx context.Context, optional bool) (packetBody, bool, error) {
	// 攒够 4 字节包头
	for t.buf.unreadLen() < HeaderSize {
		n, err := t.fill(ctx, HeaderSize-t.buf.unreadLen())
		if err != nil {
			return packetBody{}, false, err
		}
		if n == 0 {
			if t.buf.unreadLen() == 0 {
				if optional {
					return packetBody{}, false, nil
				}
				return packetBody{}, false, ErrUnexpectedEOF
			}
			// 包头只到了一半就断流，optional 也救不了
			return packetBody{}, false, ErrTruncatedPacket
		}
	}

	head := t.buf.unread()[:HeaderSize]
	length := int(getUint24(head[0:3]))
	seq := head[3]

	if seq != t.seq.current() {
		if optional {
			return packetBody{}, false, nil
		}
		return packetBody{}, false, errors.Wrapf(ErrPacketSequence, "got %d, want %d", seq, t.seq.current())
	}
	t.seq.advance()
	t.buf.consume(HeaderSize)

	t.logger.Trace().Uint8("seq", seq).Int("len", length).Msg("read packet")

	// 包体已经完整在缓冲区里，直接借用
	if t.buf.unreadLen() >= length {
		body := t.buf.unread()[:length:length]
		t.buf.consume(length)
		return packetBody{data: body}, true, nil
	}

	// 包体超过工作缓冲区容量：临时换一个 length 字节的独立缓冲区，
	// 读完这个包之后工作缓冲区回到空状态，继续用标准大小
	if length > t.buf.capacity() {
		spare := 0
		if length == t.maxPacketSize {
			// 满包后面必有延续包，预留空间让重组直接在这块缓冲区
			// 上追加，不用先把它整个拷一遍
			spare = t.maxPacketSize
		}
		body := make([]byte, length, length+spare)
		n := copy(body, t.buf.unread())
		t.buf.reset()
		if err := t.readFull(ctx, body[n:]); err != nil {
			return packetBody{}, false, err
		}
		return packetBody{data: body, owned: true}, true, nil
	}

	// 包体放得下但还没到齐，继续从传输层补
	for t.buf.unreadLen() < length {
		n, err := t.fill(ctx, length-t.buf.unreadLen())
		if err != nil {
			return packetBody{}, false, err
		}
		if n == 0 {
			return packetBody{}, false, ErrTruncatedPacket
		}
	}
	body := t.buf.unread()[:length:length]
	t.buf.consume(length)
	return packetBody{data: body}, true, nil
}

// receivePayload 接收一个逻辑负载，自动合并被拆分的大包
//
// 包体长度等于单包上限表示后面还有延续包，一直读到一个较短的包
// （可能是空包）为止
func (t *Transmitter) receivePayload(ctx context.Context, optional bool) ([]byte, bool, error) {
	first, ok, err := t.readPacket(ctx, optional)
	if err != nil || !ok {
		return nil, false, err
	}
	if len(first.data) < t.maxPacketSize {
		return first.data, true, nil
	}

	// 第一个包已经是独立缓冲区时直接在它上面追加；借用工作缓冲区的
	// 必须先拷出来，下一个包会覆盖它
	var payload []byte
	if first.owned {
		payload = first.data
	} else {
		payload = append([]byte(nil), first.data...)
	}
	for {
		next, _, err := t.readPacket(ctx, false)
		if err != nil {
			return nil, false, err
		}
		payload = append(payload, next.data...)
		if len(next.data) < t.maxPacketSize {
			return payload, true, nil
		}
	}
}

// fill 从传输层读一次数据进工作缓冲区，保证至少 min 字节空闲空间
// 空间不够时先压缩缓冲区
func (t *Transmitter) fill(ctx context.Context, min int) (int, error) {
	t.buf.ensureFree(min)
	n, err := t.transport.Read(ctx, t.buf.free())
	if err != nil {
		return 0, err
	}
	t.buf.fill(n)
	return n, nil
}

// readFull 绕过工作缓冲区读满 p，用于超大包体
func (t *Transmitter) readFull(ctx context.Context, p []byte) error {
	for len(p) > 0 {
		n, err := t.transport.Read(ctx, p)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrTruncatedPacket
		}
		p = p[n:]
	}
	return nil
}

// MySQL 协议的长度字段都是小端序
func getUint24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}
