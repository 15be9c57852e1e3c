package wire

import (
	"encoding/binary"
	"fmt"
)

// DecodeError reports malformed or truncated input. A decode that returns it
// must not have produced any partially constructed result.
type DecodeError struct {
	Message string
}

func (e *DecodeError) Error() string {
	return "wire: " + e.Message
}

func decodeErrorf(format string, args ...any) *DecodeError {
	return &DecodeError{Message: fmt.Sprintf(format, args...)}
}

// Writer accumulates a binary stream: unsigned varints, length-prefixed
// strings, bool and raw bytes. The zero value is ready to use.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated stream. The slice is owned by the writer
// until the next append.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) Uvarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

func (w *Writer) Byte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *Writer) Bool(b bool) {
	if b {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// String writes a uvarint length prefix followed by the raw bytes.
func (w *Writer) String(s string) {
	w.Uvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// Reader consumes a stream produced by Writer. All methods fail with a
// *DecodeError on truncated or malformed input.
type Reader struct {
	buf []byte
	off int
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining reports how many bytes are left unconsumed.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *Reader) Uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		return 0, decodeErrorf("truncated uvarint at offset %d", r.off)
	}
	r.off += n
	return v, nil
}

func (r *Reader) Byte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, decodeErrorf("truncated stream at offset %d", r.off)
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *Reader) Bool() (bool, error) {
	b, err := r.Byte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, decodeErrorf("invalid bool byte %d at offset %d", b, r.off-1)
	}
}

func (r *Reader) String() (string, error) {
	n, err := r.Uvarint()
	if err != nil {
		return "", err
	}
	if n > uint64(r.Remaining()) {
		return "", decodeErrorf("string length %d exceeds remaining %d bytes", n, r.Remaining())
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}
