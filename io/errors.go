package io

// 错误定义
var (
	ErrPacketTooLarge  = &IOError{"packet size exceeds maximum allowed size"}
	ErrInvalidPacket   = &IOError{"invalid packet format"}
	ErrPacketSequence  = &IOError{"packet sequence mismatch"}
	ErrUnexpectedEOF   = &IOError{"connection closed while a packet was expected"}
	ErrTruncatedPacket = &IOError{"connection closed in the middle of a packet"}
)

// IOError IO 模块错误
type IOError struct {
	message string
}

func (e *IOError) Error() string {
	return e.message
}
