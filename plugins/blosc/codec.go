package blosc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compressor codes accepted by the "compressor" configuration key.
const (
	CompressorRaw    = 0 // stored uncompressed; also the incompressible fallback
	CompressorLZ4    = 1
	CompressorLZ4HC  = 2
	CompressorSnappy = 3
	CompressorZlib   = 4
	CompressorZstd   = 5
)

// maxOverhead is the fixed per-frame overhead reserved on top of the
// uncompressed size when sizing the scratch buffer: the 16-byte header
// plus slack for incompressible input handled by the raw fallback.
const maxOverhead = headerSize

// headerSize is the length of the self-describing header prepended to
// every compressed payload, mirroring the cd_values convention of
// blosc-framed data: format version, codec, shuffle mode, type size
// and the uncompressed length.
const headerSize = 16

const formatVersion = 1

func compressorName(code int) string {
	switch code {
	case CompressorRaw:
		return "raw"
	case CompressorLZ4:
		return "lz4"
	case CompressorLZ4HC:
		return "lz4hc"
	case CompressorSnappy:
		return "snappy"
	case CompressorZlib:
		return "zlib"
	case CompressorZstd:
		return "zstd"
	default:
		return "invalid"
	}
}

// putHeader writes the self-describing header into dst[:headerSize].
func putHeader(dst []byte, codec, shuffle, typeSize int, uncompressed uint64) {
	dst[0] = formatVersion
	dst[1] = byte(codec)
	dst[2] = byte(shuffle)
	dst[3] = byte(typeSize)
	binary.LittleEndian.PutUint64(dst[4:12], uncompressed)
	dst[12], dst[13], dst[14], dst[15] = 0, 0, 0, 0
}

// parseHeader reads back the header fields.
func parseHeader(src []byte) (codec, shuffle, typeSize int, uncompressed uint64, err error) {
	if len(src) < headerSize {
		return 0, 0, 0, 0, fmt.Errorf("blosc: payload too short for header")
	}
	if src[0] != formatVersion {
		return 0, 0, 0, 0, fmt.Errorf("blosc: unsupported format version %d", src[0])
	}
	return int(src[1]), int(src[2]), int(src[3]), binary.LittleEndian.Uint64(src[4:12]), nil
}

// compress runs the selected codec over src (already shuffled) and
// returns the codec payload without header. A nil error with
// CompressorRaw as the returned code means the input was
// incompressible and stored as-is.
func compress(codec, level, threads int, src []byte) ([]byte, int, error) {
	switch codec {
	case CompressorLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(src)))
		var c lz4.Compressor
		n, err := c.CompressBlock(src, dst)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4: %w", err)
		}
		if n == 0 {
			return append([]byte(nil), src...), CompressorRaw, nil
		}
		return dst[:n], codec, nil

	case CompressorLZ4HC:
		dst := make([]byte, lz4.CompressBlockBound(len(src)))
		c := lz4.CompressorHC{Level: lz4.CompressionLevel(1 << (8 + level))}
		n, err := c.CompressBlock(src, dst)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4hc: %w", err)
		}
		if n == 0 {
			return append([]byte(nil), src...), CompressorRaw, nil
		}
		return dst[:n], codec, nil

	case CompressorSnappy:
		return snappy.Encode(nil, src), codec, nil

	case CompressorZlib:
		var buf bytes.Buffer
		w, err := zlib.NewWriterLevel(&buf, level)
		if err != nil {
			return nil, 0, fmt.Errorf("zlib: %w", err)
		}
		if _, err := w.Write(src); err != nil {
			return nil, 0, fmt.Errorf("zlib: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, 0, fmt.Errorf("zlib: %w", err)
		}
		return buf.Bytes(), codec, nil

	case CompressorZstd:
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
			zstd.WithEncoderConcurrency(threads),
		)
		if err != nil {
			return nil, 0, fmt.Errorf("zstd: %w", err)
		}
		out := enc.EncodeAll(src, nil)
		if err := enc.Close(); err != nil {
			return nil, 0, fmt.Errorf("zstd: %w", err)
		}
		return out, codec, nil

	default:
		return nil, 0, fmt.Errorf("unknown compressor code %d", codec)
	}
}

// decompress reverses compress for a headerless codec payload.
func decompress(codec int, src []byte, uncompressed int) ([]byte, error) {
	switch codec {
	case CompressorRaw:
		return append([]byte(nil), src...), nil

	case CompressorLZ4, CompressorLZ4HC:
		dst := make([]byte, uncompressed)
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		return dst[:n], nil

	case CompressorSnappy:
		out, err := snappy.Decode(nil, src)
		if err != nil {
			return nil, fmt.Errorf("snappy: %w", err)
		}
		return out, nil

	case CompressorZlib:
		r, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		defer r.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(r); err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		return buf.Bytes(), nil

	case CompressorZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(src, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown compressor code %d", codec)
	}
}
