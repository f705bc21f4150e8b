package recordio

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/KevoDB/chunksort/pkg/config"
)

// ErrUnknownCodec is returned when an unsupported compression codec is specified
var ErrUnknownCodec = errors.New("unknown compression codec")

// newCompressWriter wraps w with the codec's encoder. Closing the result
// flushes the codec but does not close w.
func newCompressWriter(w io.Writer, codec config.Compression) (io.WriteCloser, error) {
	switch codec {
	case "", config.CompressionNone:
		return nopWriteCloser{w}, nil

	case config.CompressionZstd:
		return zstd.NewWriter(w)

	case config.CompressionSnappy:
		return snappy.NewBufferedWriter(w), nil

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}
}

// newCompressReader wraps r with the codec's decoder. Closing the result
// releases decoder state but does not close r.
func newCompressReader(r io.Reader, codec config.Compression) (io.ReadCloser, error) {
	switch codec {
	case "", config.CompressionNone:
		return io.NopCloser(r), nil

	case config.CompressionZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{decoder}, nil

	case config.CompressionSnappy:
		return io.NopCloser(snappy.NewReader(r)), nil

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
