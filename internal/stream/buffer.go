// Package stream provides a growing byte buffer that lets a transport read an
// audio response as a seekable stream while the response is still being produced.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
)

// UnknownLength is reported by Length while the producer may still append data.
const UnknownLength = math.MaxInt32

// Errors returned by Buffer.
var (
	ErrBufferClosed  = errors.New("stream buffer is complete")
	ErrNegativeSeek  = errors.New("stream buffer: negative position")
	ErrInvalidWhence = errors.New("stream buffer: invalid whence")
)

// Identity carries correlation tokens used for logging only.
type Identity struct {
	Path      string
	SessionID string
	ContentID string
	PlayIdx   string
}

// String returns a compact form suitable for log fields.
func (id Identity) String() string {
	return fmt.Sprintf("%s/%s/%s", id.SessionID, id.ContentID, id.PlayIdx)
}

// ChangeFunc is invoked after every append and once after completion.
// Returning true unregisters it permanently.
type ChangeFunc func(b *Buffer) bool

// Buffer is an append-only chunk list with a read cursor.
//
// One producer appends chunks and finally calls MarkComplete. One consumer
// moves the cursor with Seek/SeekTo and reads through Reader or Read.
// While the buffer is open, Length reports UnknownLength so range based
// consumers keep asking for more.
type Buffer struct {
	id Identity

	mu          sync.Mutex
	chunks      [][]byte
	length      int64
	pos         int64
	open        bool
	onChange    ChangeFunc
	onChangeGen uint64

	// changed is closed and replaced on every append and on completion.
	changed chan struct{}
}

// NewBuffer creates an open, empty buffer.
func NewBuffer(id Identity) *Buffer {
	return &Buffer{
		id:      id,
		open:    true,
		changed: make(chan struct{}),
	}
}

// Identity returns the correlation tokens of the buffer.
func (b *Buffer) Identity() Identity {
	return b.id
}

// OnChange registers fn, replacing any previous callback.
func (b *Buffer) OnChange(fn ChangeFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
	b.onChangeGen++
}

// Append adds a chunk at the end of the buffer. The chunk must not be
// modified by the caller afterwards.
func (b *Buffer) Append(chunk []byte) error {
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		return ErrBufferClosed
	}
	b.chunks = append(b.chunks, chunk)
	b.length += int64(len(chunk))
	b.signalLocked()
	fn, gen := b.onChange, b.onChangeGen
	b.mu.Unlock()

	b.fireChange(fn, gen)
	return nil
}

// MarkComplete closes the producer side. The final length is fixed and the
// change callback is notified one last time. Calling it again is a no-op.
func (b *Buffer) MarkComplete() {
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		return
	}
	b.open = false
	b.signalLocked()
	fn, gen := b.onChange, b.onChangeGen
	b.mu.Unlock()

	b.fireChange(fn, gen)
}

// fireChange runs fn outside the lock so the callback may query the buffer.
func (b *Buffer) fireChange(fn ChangeFunc, gen uint64) {
	if fn == nil {
		return
	}
	if !fn(b) {
		return
	}
	b.mu.Lock()
	if b.onChangeGen == gen {
		b.onChange = nil
		b.onChangeGen++
	}
	b.mu.Unlock()
}

func (b *Buffer) signalLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// Streaming reports whether more data may still arrive.
func (b *Buffer) Streaming() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// NeedMoreData reports whether reading n bytes at the cursor has to wait for
// the producer. It is false when enough data is buffered and also when the
// buffer is complete, in which case a shortfall is a plain EOF.
func (b *Buffer) NeedMoreData(n int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open && b.pos+n > b.length
}

// Length returns UnknownLength while open and the exact size once complete.
func (b *Buffer) Length() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return UnknownLength
	}
	return b.length
}

// Buffered returns the number of bytes appended so far.
func (b *Buffer) Buffered() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// Tell returns the cursor position.
func (b *Buffer) Tell() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos
}

// SeekTo moves the cursor to pos, measured from the start. Positions past
// the buffered region are rejected; callers check NeedMoreData first.
func (b *Buffer) SeekTo(pos int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seekLocked(pos)
}

// Seek implements io.Seeker. io.SeekEnd is relative to Length, so while the
// buffer is open it is relative to UnknownLength.
func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = b.pos
	case io.SeekEnd:
		base = b.length
		if b.open {
			base = UnknownLength
		}
	default:
		return b.pos, ErrInvalidWhence
	}
	return b.seekLocked(base + offset)
}

func (b *Buffer) seekLocked(pos int64) (int64, error) {
	if pos < 0 {
		return b.pos, ErrNegativeSeek
	}
	if pos > b.length {
		return b.pos, fmt.Errorf("stream buffer: seek to %d beyond %d buffered bytes", pos, b.length)
	}
	b.pos = pos
	return b.pos, nil
}

// Reader returns a view over the buffered chunks starting at the cursor.
// Chunks are not copied. The view covers the data buffered at call time and
// does not move the cursor.
func (b *Buffer) Reader() io.Reader {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := newChunkReader(b.chunks[:len(b.chunks):len(b.chunks)])
	r.skip(b.pos)
	return r
}

// Read implements io.Reader from the cursor and advances it. It blocks while
// the buffer is open and nothing is available, and returns io.EOF once the
// buffer is complete and drained.
func (b *Buffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.pos >= b.length {
		if !b.open {
			return 0, io.EOF
		}
		changed := b.changed
		b.mu.Unlock()
		<-changed
		b.mu.Lock()
	}
	r := newChunkReader(b.chunks)
	r.skip(b.pos)
	n, _ := r.Read(p)
	b.pos += int64(n)
	return n, nil
}

// Wait blocks until reading n bytes at the cursor no longer needs more data
// or ctx is done.
func (b *Buffer) Wait(ctx context.Context, n int64) error {
	for {
		b.mu.Lock()
		if !b.open || b.pos+n <= b.length {
			b.mu.Unlock()
			return nil
		}
		changed := b.changed
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}
