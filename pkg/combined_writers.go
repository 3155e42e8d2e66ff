package pkg

import (
	"io"

	"go.uber.org/multierr"
)

// CombinedWriter duplicates writes to all of its writers, e.g. stdout and a rotated log file.
// A failing writer does not stop the others; the errors are combined.
type CombinedWriter struct {
	Writers []io.Writer
	// Err holds all the errors seen so far.
	Err error
}

func NewCombinedWriter(writers ...io.Writer) *CombinedWriter {
	return &CombinedWriter{
		Writers: append([]io.Writer(nil), writers...),
	}
}

func (cw *CombinedWriter) Write(p []byte) (int, error) {
	var (
		total int
		err   error
	)
	for _, w := range cw.Writers {
		written, werr := w.Write(p)
		if werr != nil {
			err = multierr.Append(err, werr)
			continue
		}
		total += written
	}
	cw.Err = multierr.Append(cw.Err, err)
	return total, err
}

// Close closes every writer that is also an io.Closer.
func (cw *CombinedWriter) Close() error {
	var err error
	for _, w := range cw.Writers {
		if c, ok := w.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
