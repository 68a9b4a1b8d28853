// Package audio buffers inbound frames between the transport reader and
// the VAD loop so capture is never blocked by processing.
package audio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/satriahrh/wicara/domain/entities"
)

// ErrBufferOverflow reports that the backlog exceeded its cap and the
// oldest frames were dropped to make room. Recovered locally; never
// surfaced to the client on its own.
var ErrBufferOverflow = errors.New("audio frame backlog exceeded cap, oldest frames dropped")

// ErrBufferClosed reports a push after Close.
var ErrBufferClosed = errors.New("audio frame buffer is closed")

const defaultCapacity = 256

// FrameBuffer is a bounded frame queue with drop-oldest overflow.
// One producer (the transport read pump) and one consumer (the VAD loop).
type FrameBuffer struct {
	frames  chan entities.AudioFrame
	seq     atomic.Uint64
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewFrameBuffer creates a buffer holding at most capacity frames.
// capacity <= 0 selects the default.
func NewFrameBuffer(capacity int) *FrameBuffer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &FrameBuffer{
		frames: make(chan entities.AudioFrame, capacity),
	}
}

// Push enqueues one frame without ever blocking the caller. When the
// backlog is full it evicts the oldest frames until the new frame fits
// and reports ErrBufferOverflow so the caller can log the drop.
func (b *FrameBuffer) Push(data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBufferClosed
	}

	frame := entities.AudioFrame{
		Seq:        b.seq.Add(1),
		Data:       data,
		ReceivedAt: time.Now(),
	}

	select {
	case b.frames <- frame:
		return nil
	default:
	}

	// Live speech has no value once stale: evict from the head.
	for {
		select {
		case <-b.frames:
			b.dropped.Add(1)
		default:
		}
		select {
		case b.frames <- frame:
			return ErrBufferOverflow
		default:
		}
	}
}

// Frames returns the drain channel. Frames arrive in order; the channel
// closes when the buffer is closed.
func (b *FrameBuffer) Frames() <-chan entities.AudioFrame {
	return b.frames
}

// Len reports the current backlog size.
func (b *FrameBuffer) Len() int {
	return len(b.frames)
}

// Dropped reports the total number of frames evicted by overflow.
func (b *FrameBuffer) Dropped() uint64 {
	return b.dropped.Load()
}

// Close releases the backlog. Pushes after Close fail with
// ErrBufferClosed; the drain channel closes once emptied.
func (b *FrameBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.frames)
}
