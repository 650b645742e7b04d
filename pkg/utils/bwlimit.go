// pkg/utils/bwlimit.go

package utils

import (
	"io"

	"github.com/juju/ratelimit"
)

func newBucket(limit int64) *ratelimit.Bucket {
	if limit <= 0 {
		return nil
	}
	// leave room for the protocol overhead of the store client
	return ratelimit.NewBucketWithRate(float64(limit)*0.85, limit)
}

type limitedReader struct {
	io.Reader
	r *ratelimit.Bucket
}

func (l *limitedReader) Read(buf []byte) (int, error) {
	n, err := l.Reader.Read(buf)
	if l.r != nil {
		l.r.Wait(int64(n))
	}
	return n, err
}

// LimitReader throttles r to limit bytes per second, 0 means no limit.
func LimitReader(r io.Reader, limit int64) io.Reader {
	if limit <= 0 {
		return r
	}
	return &limitedReader{r, newBucket(limit)}
}

type limitedWriter struct {
	io.Writer
	w *ratelimit.Bucket
}

func (l *limitedWriter) Write(buf []byte) (int, error) {
	l.w.Wait(int64(len(buf)))
	return l.Writer.Write(buf)
}

// LimitWriter throttles w to limit bytes per second, 0 means no limit.
func LimitWriter(w io.Writer, limit int64) io.Writer {
	if limit <= 0 {
		return w
	}
	return &limitedWriter{w, newBucket(limit)}
}
