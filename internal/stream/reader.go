package stream

import "io"

// chunkReader reads sequentially across a list of chunks without copying them
// into a contiguous slice.
type chunkReader struct {
	chunks [][]byte
	idx    int
	off    int
}

func newChunkReader(chunks [][]byte) *chunkReader {
	return &chunkReader{chunks: chunks}
}

// skip advances n bytes from the current position.
func (r *chunkReader) skip(n int64) {
	for n > 0 && r.idx < len(r.chunks) {
		rest := int64(len(r.chunks[r.idx]) - r.off)
		if n < rest {
			r.off += int(n)
			return
		}
		n -= rest
		r.idx++
		r.off = 0
	}
}

func (r *chunkReader) Read(p []byte) (int, error) {
	total := 0
	for total < len(p) && r.idx < len(r.chunks) {
		n := copy(p[total:], r.chunks[r.idx][r.off:])
		total += n
		r.off += n
		if r.off >= len(r.chunks[r.idx]) {
			r.idx++
			r.off = 0
		}
	}
	if total == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return total, nil
}

// WriteTo implements io.WriterTo so io.Copy hands chunks straight to w.
func (r *chunkReader) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for r.idx < len(r.chunks) {
		n, err := w.Write(r.chunks[r.idx][r.off:])
		total += int64(n)
		if err != nil {
			r.off += n
			return total, err
		}
		r.idx++
		r.off = 0
	}
	return total, nil
}
