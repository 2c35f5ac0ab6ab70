// Package replication batches committed journal entries for cross-site
// shipping and compresses them for WAN transport.
package replication

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/marmos91/dittofs/pkg/claudefs/journal"

	claudefserrors "github.com/marmos91/dittofs/pkg/claudefs/errors"
)

// Algo is a journal batch wire-compression algorithm.
type Algo int

const (
	// None performs no compression.
	None Algo = iota
	// LZ4 is the default: low latency, roughly 2x ratio.
	LZ4
	// Zstd gives a higher ratio at more CPU cost; suited to WAN links.
	Zstd
)

// IsCompressed reports whether the algorithm actually compresses data.
func (a Algo) IsCompressed() bool {
	return a != None
}

// Config configures the batch compressor.
type Config struct {
	Algo Algo
	// ZstdLevel is clamped to [1, 22]; ignored for LZ4/None.
	ZstdLevel int
	// MinCompressBytes is the minimum serialized size before compression
	// is attempted. Smaller batches ship uncompressed regardless of Algo.
	MinCompressBytes int
}

// DefaultConfig returns the replication compression defaults.
func DefaultConfig() Config {
	return Config{
		Algo:             LZ4,
		ZstdLevel:        3,
		MinCompressBytes: 256,
	}
}

// EntryBatch is a sequence-numbered group of journal entries shipped to
// one or more replica sites as a single unit.
type EntryBatch struct {
	SourceSiteID uint64
	Entries      []journal.Entry
	BatchSeq     uint64
}

// NewEntryBatch creates a batch.
func NewEntryBatch(sourceSiteID uint64, entries []journal.Entry, batchSeq uint64) EntryBatch {
	return EntryBatch{SourceSiteID: sourceSiteID, Entries: entries, BatchSeq: batchSeq}
}

// CompressedBatch is a batch ready for wire transmission.
type CompressedBatch struct {
	BatchSeq        uint64
	SourceSiteID    uint64
	OriginalBytes   int
	CompressedBytes int
	Algo            Algo
	Data            []byte
}

// CompressionRatio returns original/compressed; >= 1.0 means compression
// helped.
func (b CompressedBatch) CompressionRatio() float64 {
	if b.CompressedBytes == 0 {
		return 1.0
	}
	return float64(b.OriginalBytes) / float64(b.CompressedBytes)
}

// IsBeneficial reports whether compression reduced the wire size.
func (b CompressedBatch) IsBeneficial() bool {
	return b.CompressedBytes < b.OriginalBytes
}

func clampZstdLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 22 {
		return 22
	}
	return level
}

// BatchCompressor compresses and decompresses EntryBatch values for
// cross-site shipping.
type BatchCompressor struct {
	config Config
}

// New creates a batch compressor.
func New(config Config) *BatchCompressor {
	return &BatchCompressor{config: config}
}

// Config returns the compressor's configuration.
func (c *BatchCompressor) Config() Config {
	return c.config
}

// Compress serializes batch and applies the configured compression
// algorithm, falling back to None if the serialized size is below
// MinCompressBytes.
func (c *BatchCompressor) Compress(batch EntryBatch) (CompressedBatch, error) {
	serialized, err := json.Marshal(batch)
	if err != nil {
		return CompressedBatch{}, claudefserrors.Wrap(claudefserrors.KindReplication, claudefserrors.CodeCompressionFailure, "BatchCompressor.Compress", err)
	}
	originalBytes := len(serialized)

	effectiveAlgo := c.config.Algo
	if originalBytes < c.config.MinCompressBytes {
		effectiveAlgo = None
	}

	data, err := c.compressBytesWith(serialized, effectiveAlgo)
	if err != nil {
		return CompressedBatch{}, err
	}

	return CompressedBatch{
		BatchSeq:        batch.BatchSeq,
		SourceSiteID:    batch.SourceSiteID,
		OriginalBytes:   originalBytes,
		CompressedBytes: len(data),
		Algo:            effectiveAlgo,
		Data:            data,
	}, nil
}

// Decompress reverses Compress, reconstructing the original EntryBatch.
func (c *BatchCompressor) Decompress(compressed CompressedBatch) (EntryBatch, error) {
	decompressed, err := c.DecompressBytes(compressed.Data, compressed.Algo)
	if err != nil {
		return EntryBatch{}, err
	}

	var batch EntryBatch
	if err := json.Unmarshal(decompressed, &batch); err != nil {
		return EntryBatch{}, claudefserrors.Wrap(claudefserrors.KindReplication, claudefserrors.CodeCompressionFailure, "BatchCompressor.Decompress", err)
	}
	return batch, nil
}

// CompressBytes compresses raw bytes with the configured algorithm,
// returning the algorithm actually applied.
func (c *BatchCompressor) CompressBytes(data []byte) ([]byte, Algo, error) {
	out, err := c.compressBytesWith(data, c.config.Algo)
	if err != nil {
		return nil, None, err
	}
	return out, c.config.Algo, nil
}

func (c *BatchCompressor) compressBytesWith(data []byte, algo Algo) ([]byte, error) {
	switch algo {
	case None:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case LZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, claudefserrors.Wrap(claudefserrors.KindReplication, claudefserrors.CodeCompressionFailure, "BatchCompressor.compressBytesWith", err)
		}
		if err := w.Close(); err != nil {
			return nil, claudefserrors.Wrap(claudefserrors.KindReplication, claudefserrors.CodeCompressionFailure, "BatchCompressor.compressBytesWith", err)
		}
		return buf.Bytes(), nil
	case Zstd:
		level := zstd.EncoderLevelFromZstd(clampZstdLevel(c.config.ZstdLevel))
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		if err != nil {
			return nil, claudefserrors.Wrap(claudefserrors.KindReplication, claudefserrors.CodeCompressionFailure, "BatchCompressor.compressBytesWith", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, claudefserrors.New(claudefserrors.KindReplication, claudefserrors.CodeCompressionFailure, "BatchCompressor.compressBytesWith")
	}
}

// DecompressBytes decompresses raw bytes with the specified algorithm.
func (c *BatchCompressor) DecompressBytes(data []byte, algo Algo) ([]byte, error) {
	switch algo {
	case None:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case LZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, claudefserrors.Wrap(claudefserrors.KindReplication, claudefserrors.CodeCompressionFailure, "BatchCompressor.DecompressBytes", err)
		}
		return out, nil
	case Zstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, claudefserrors.Wrap(claudefserrors.KindReplication, claudefserrors.CodeCompressionFailure, "BatchCompressor.DecompressBytes", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, claudefserrors.Wrap(claudefserrors.KindReplication, claudefserrors.CodeCompressionFailure, "BatchCompressor.DecompressBytes", err)
		}
		return out, nil
	default:
		return nil, claudefserrors.New(claudefserrors.KindReplication, claudefserrors.CodeCompressionFailure, "BatchCompressor.DecompressBytes")
	}
}
