package io

// sequenceCounter 会话内共享的 8 位回绕序列号
// 发送和接收共用同一个计数器，每封包/解包一个包递增一次，
// 会话开始时（第一次 Send 或 Receive）清零
type sequenceCounter uint8

func (s *sequenceCounter) current() uint8 {
	return uint8(*s)
}

func (s *sequenceCounter) advance() {
	*s++
}

func (s *sequenceCounter) reset() {
	*s = 0
}
