package framelink

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// HeaderSize is the length in bytes of the frame length prefix.
const HeaderSize = 4

// maxPayload is the largest length a payload buffer can be allocated with.
var maxPayload uint64 = math.MaxInt

// skipBufferSize bounds the scratch buffer used to drop oversized payloads.
const skipBufferSize = 32 * 1024

// Encode returns payload prefixed with its length as a big-endian uint32.
// Payloads longer than math.MaxUint32 bytes cannot be framed.
func Encode(payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf
}

// DecodeLength decodes a frame length prefix. prefix must hold at least
// HeaderSize bytes.
func DecodeLength(prefix []byte) uint32 {
	return binary.BigEndian.Uint32(prefix)
}

// Decode extracts the payload of the single frame held in data.
// Bytes following the frame are ignored.
func Decode(data []byte) ([]byte, error) {
	if len(data) < HeaderSize {
		return nil, &FramingError{Read: len(data), Want: HeaderSize, Err: io.ErrUnexpectedEOF}
	}
	size := DecodeLength(data)
	body := data[HeaderSize:]
	if uint64(size) > maxPayload {
		return nil, &FramingError{Read: len(body), Want: clampLen(int64(size)), Err: ErrFrameTooLarge}
	}
	n := int(size)
	if len(body) < n {
		return nil, &FramingError{Read: len(body), Want: n, Err: io.ErrUnexpectedEOF}
	}
	payload := make([]byte, n)
	copy(payload, body)
	return payload, nil
}

// WriteFrame writes payload to w as one frame with a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	_, err := w.Write(Encode(payload))
	return err
}

// FrameReader reads frames from a byte stream.
//
// A frame split across any number of reads is reassembled. When the
// underlying reader times out the partial frame is kept and the next
// ReadFrame call carries on from there; any other failure discards it.
// Oversized frames are skipped the same way: a timeout part-way through the
// skip leaves the rest to be dropped by the next call.
// A FrameReader is not safe for concurrent use.
type FrameReader struct {
	r       io.Reader
	maxSize int

	header  [HeaderSize]byte
	headerN int
	payload []byte
	payN    int
	inBody  bool

	// skip is the number of oversized payload bytes still to drop out of
	// skipSize.
	skip     int64
	skipSize int64
}

// NewFrameReader returns a FrameReader reading from r without a frame size
// limit.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// newFrameReaderSize returns a FrameReader rejecting frames larger than
// maxSize bytes. A maxSize of zero or less disables the limit.
func newFrameReaderSize(r io.Reader, maxSize int) *FrameReader {
	return &FrameReader{r: r, maxSize: maxSize}
}

// ReadFrame returns the payload of the next frame.
//
// It returns a *FramingError if the stream ends or fails before the frame is
// complete. Timeout errors from the underlying reader are returned
// unchanged. A frame larger than the limit, or than a buffer can hold, is
// dropped and reported as a *FramingError wrapping ErrFrameTooLarge once
// its payload has been skipped entirely.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if fr.skip > 0 {
		return nil, fr.skipPayload()
	}

	if !fr.inBody {
		for fr.headerN < HeaderSize {
			n, err := fr.r.Read(fr.header[fr.headerN:])
			fr.headerN += n
			if fr.headerN == HeaderSize {
				break
			}
			if err = fr.check(n, err); err != nil {
				return nil, fr.fail(err, fr.headerN, HeaderSize)
			}
		}

		size := DecodeLength(fr.header[:])
		if fr.tooLarge(size) {
			fr.reset()
			fr.skip = int64(size)
			fr.skipSize = int64(size)
			return nil, fr.skipPayload()
		}
		fr.payload = make([]byte, size)
		fr.payN = 0
		fr.inBody = true
	}

	for fr.payN < len(fr.payload) {
		n, err := fr.r.Read(fr.payload[fr.payN:])
		fr.payN += n
		if fr.payN == len(fr.payload) {
			break
		}
		if err = fr.check(n, err); err != nil {
			return nil, fr.fail(err, fr.payN, len(fr.payload))
		}
	}

	payload := fr.payload
	fr.reset()
	return payload, nil
}

// check turns a read that made no progress into an error.
func (fr *FrameReader) check(n int, err error) error {
	if err != nil {
		return err
	}
	if n <= 0 {
		return io.ErrNoProgress
	}
	return nil
}

// fail keeps the partial frame on timeouts and wraps everything else into a
// FramingError.
func (fr *FrameReader) fail(err error, read, want int) error {
	if isTimeout(err) {
		return err
	}
	fr.reset()
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &FramingError{Read: read, Want: want, Err: err}
}

func (fr *FrameReader) tooLarge(size uint32) bool {
	if uint64(size) > maxPayload {
		return true
	}
	return fr.maxSize > 0 && int64(size) > int64(fr.maxSize)
}

// skipPayload drops the remaining bytes of an oversized payload so the
// stream stays aligned on the next frame. Timeouts keep the remaining count.
func (fr *FrameReader) skipPayload() error {
	buf := make([]byte, min(fr.skip, skipBufferSize))
	for fr.skip > 0 {
		n, err := fr.r.Read(buf[:min(fr.skip, int64(len(buf)))])
		fr.skip -= int64(n)
		if fr.skip == 0 {
			break
		}
		if err = fr.check(n, err); err != nil {
			if isTimeout(err) {
				return err
			}
			read, want := fr.skipSize-fr.skip, fr.skipSize
			fr.reset()
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return &FramingError{Read: clampLen(read), Want: clampLen(want), Err: errors.Wrap(ErrFrameTooLarge, err.Error())}
		}
	}

	size := fr.skipSize
	fr.reset()
	return &FramingError{Read: clampLen(size), Want: clampLen(size), Err: ErrFrameTooLarge}
}

// clampLen clamps a frame length to int for error reporting.
func clampLen(n int64) int {
	if n > math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}

func (fr *FrameReader) reset() {
	fr.headerN = 0
	fr.payload = nil
	fr.payN = 0
	fr.inBody = false
	fr.skip = 0
	fr.skipSize = 0
}
