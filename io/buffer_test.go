package io

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkingBufferCursors(t *testing.T) {
	b := newWorkingBuffer(16)
	assert.Equal(t, 16, b.capacity())
	assert.Equal(t, 0, b.unreadLen())
	assert.Equal(t, 16, len(b.free()))

	copy(b.free(), []byte("hello"))
	b.fill(5)
	assert.Equal(t, 5, b.unreadLen())
	assert.Equal(t, []byte("hello"), b.unread())

	b.consume(2)
	assert.Equal(t, 3, b.unreadLen())
	assert.Equal(t, []byte("llo"), b.unread())
	assert.Equal(t, 11, len(b.free()))
}

func TestWorkingBufferCompact(t *testing.T) {
	b := newWorkingBuffer(8)
	copy(b.free(), []byte("abcdefgh"))
	b.fill(8)
	b.consume(6)

	// 压缩之后未消费的数据挪到开头，尾部空间回来了
	b.compact()
	assert.Equal(t, 0, b.offset)
	assert.Equal(t, []byte("gh"), b.unread())
	assert.Equal(t, 6, len(b.free()))

	// offset 已经是 0 时压缩是空操作
	b.compact()
	assert.Equal(t, []byte("gh"), b.unread())
}

func TestWorkingBufferEnsureFree(t *testing.T) {
	b := newWorkingBuffer(8)
	copy(b.free(), []byte("abcdefgh"))
	b.fill(8)
	b.consume(5)

	// 压缩就够了，不扩容
	b.ensureFree(4)
	assert.Equal(t, 8, b.capacity())
	assert.Equal(t, []byte("fgh"), b.unread())
	require.GreaterOrEqual(t, len(b.free()), 4)

	// 压缩也不够，必须扩容，未消费数据保持不变
	b.ensureFree(32)
	assert.GreaterOrEqual(t, b.capacity(), 3+32)
	assert.Equal(t, []byte("fgh"), b.unread())
	assert.GreaterOrEqual(t, len(b.free()), 32)
}

func TestWorkingBufferReset(t *testing.T) {
	b := newWorkingBuffer(8)
	b.fill(6)
	b.consume(3)
	b.reset()
	assert.Equal(t, 0, b.unreadLen())
	assert.Equal(t, 8, len(b.free()))
}

func TestWorkingBufferMinimumSize(t *testing.T) {
	// 放不下一个包头的配置回落到默认大小
	b := newWorkingBuffer(2)
	assert.Equal(t, DefaultBufferSize, b.capacity())
}
