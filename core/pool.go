package core

import (
	"bytes"
	"sync"
)

// GenericPool is a generic wrapper around sync.Pool
type GenericPool[T any] struct {
	pool sync.Pool
}

// NewGenericPool creates a new GenericPool with a function to create new items.
func NewGenericPool[T any](newItem func() T) *GenericPool[T] {
	return &GenericPool[T]{
		pool: sync.Pool{
			New: func() interface{} {
				return newItem()
			},
		},
	}
}

// Get retrieves an item from the pool.
func (p *GenericPool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put returns an item to the pool.
func (p *GenericPool[T]) Put(item T) {
	p.pool.Put(item)
}

// defaultBufferSize fits a typical property bag snapshot of a small world.
const defaultBufferSize = 4 * 1024

// BufferPool hands out reset buffers for snapshot encoding and compression.
var BufferPool = &bufferPool{pool: NewGenericPool(func() *bytes.Buffer {
	return bytes.NewBuffer(make([]byte, 0, defaultBufferSize))
})}

type bufferPool struct {
	pool *GenericPool[*bytes.Buffer]
}

func (bp *bufferPool) Get() *bytes.Buffer {
	return bp.pool.Get()
}

// Put resets buf and returns it to the pool.
func (bp *bufferPool) Put(buf *bytes.Buffer) {
	buf.Reset()
	bp.pool.Put(buf)
}
