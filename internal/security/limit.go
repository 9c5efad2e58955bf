package security

import (
	"io"

	"github.com/valyala/bytebufferpool"

	"github.com/woozymasta/geoguard/internal/geoerr"
)

// LimitReader wraps r and fails with a response_too_large security error as
// soon as more than limit bytes have been read.
func LimitReader(r io.Reader, limit int64) io.Reader {
	return &limitedReader{r: r, limit: limit}
}

type limitedReader struct {
	r     io.Reader
	limit int64
	read  int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.read > l.limit {
		return 0, tooLarge(l.limit)
	}

	// never ask for more than one byte past the cap
	if room := l.limit - l.read + 1; int64(len(p)) > room {
		p = p[:room]
	}

	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.limit {
		return n, tooLarge(l.limit)
	}

	return n, err
}

// ReadLimited drains r under the size cap of p and returns a private copy of
// the bytes.
func ReadLimited(r io.Reader, p Policy) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if _, err := buf.ReadFrom(LimitReader(r, p.MaxResponseSize)); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.B)

	return out, nil
}

func tooLarge(limit int64) error {
	return geoerr.New(geoerr.KindSecurity, "",
		geoerr.WithReason(ReasonResponseTooLarge),
		geoerr.WithMessage("response exceeds %d bytes", limit),
		geoerr.WithDetail("limit", limit))
}
