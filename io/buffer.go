package io

// workingBuffer 收发共用的工作缓冲区
// [offset, end) 之间是未消费的有效数据，[end, len(data)) 是空闲空间
// 不变式：0 <= offset <= end <= len(data)
type workingBuffer struct {
	data   []byte
	offset int
	end    int
}

func newWorkingBuffer(size int) *workingBuffer {
	if size < HeaderSize {
		size = DefaultBufferSize
	}
	return &workingBuffer{data: make([]byte, size)}
}

// unread 返回未消费的数据
func (b *workingBuffer) unread() []byte {
	return b.data[b.offset:b.end]
}

func (b *workingBuffer) unreadLen() int {
	return b.end - b.offset
}

// free 返回空闲空间，transport 读进来的数据写到这里
func (b *workingBuffer) free() []byte {
	return b.data[b.end:]
}

func (b *workingBuffer) capacity() int {
	return len(b.data)
}

// consume 消费 n 字节，前移 offset
func (b *workingBuffer) consume(n int) {
	b.offset += n
}

// fill transport 读入 n 字节之后前移 end
func (b *workingBuffer) fill(n int) {
	b.end += n
}

// compact 把未消费的数据挪到开头，腾出尾部空间
func (b *workingBuffer) compact() {
	if b.offset == 0 {
		return
	}
	copy(b.data, b.data[b.offset:b.end])
	b.end -= b.offset
	b.offset = 0
}

// reset 丢弃所有数据，回到空状态
func (b *workingBuffer) reset() {
	b.offset = 0
	b.end = 0
}

// ensureFree 保证至少 n 字节空闲空间：先压缩，不够再扩容
func (b *workingBuffer) ensureFree(n int) {
	if len(b.data)-b.end >= n {
		return
	}
	b.compact()
	if len(b.data)-b.end >= n {
		return
	}
	size := len(b.data) * 2
	if size < b.end+n {
		size = b.end + n
	}
	data := make([]byte, size)
	copy(data, b.data[:b.end])
	b.data = data
}
