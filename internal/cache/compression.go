// internal/cache/compression.go
package cache

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic prefixes every zstd frame.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// CompressionOptions configures compression behavior
type CompressionOptions struct {
	// Minimum size in bytes before compressing
	MinSize int
	// zstd compression level, mapped with zstd.EncoderLevelFromZstd
	Level int
	// File extensions to skip compression for
	SkipExtensions []string
}

// DefaultCompressionOptions provides sensible defaults
func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		MinSize: 1024, // 1KB
		Level:   2,
		SkipExtensions: []string{
			".zip", ".gz", ".zst", ".xz", ".bz2",
			".png", ".jpg", ".jpeg", ".gif", ".webp",
			".pdf",
		},
	}
}

// compressionManager compresses snapshot bodies. EncodeAll and DecodeAll
// are safe for concurrent use, so one encoder and decoder are shared.
type compressionManager struct {
	opts CompressionOptions
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

func newCompressionManager(opts CompressionOptions) (*compressionManager, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.Level)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	return &compressionManager{
		opts: opts,
		enc:  enc,
		dec:  dec,
	}, nil
}

// shouldCompress determines if content should be compressed
func (cm *compressionManager) shouldCompress(path string, size int) bool {
	if size < cm.opts.MinSize {
		return false
	}

	ext := strings.ToLower(filepath.Ext(path))
	for _, skipExt := range cm.opts.SkipExtensions {
		if ext == skipExt {
			return false
		}
	}

	return true
}

// compress returns the body to store and whether it was compressed.
func (cm *compressionManager) compress(path string, content []byte) ([]byte, bool) {
	if !cm.shouldCompress(path, len(content)) {
		return content, false
	}
	return cm.enc.EncodeAll(content, make([]byte, 0, len(content)/2)), true
}

// decompress reverses compress. Bodies without the zstd magic are returned
// untouched.
func (cm *compressionManager) decompress(content []byte) ([]byte, error) {
	if len(content) < len(zstdMagic) || !bytes.Equal(content[:len(zstdMagic)], zstdMagic) {
		return content, nil
	}

	out, err := cm.dec.DecodeAll(content, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}
	return out, nil
}

// close cleans up resources
func (cm *compressionManager) close() {
	cm.enc.Close()
	cm.dec.Close()
}
