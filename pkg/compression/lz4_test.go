package compression

import (
	"bytes"
	"testing"
)

func TestLZ4Compressor(t *testing.T) {
	compressor, err := NewCompressor(&Config{Algorithm: LZ4, Level: Default})
	if err != nil {
		t.Fatalf("Failed to create LZ4 compressor: %v", err)
	}

	original := []byte("This is a test string that will be compressed and decompressed using LZ4. " +
		"It contains some repetitive content content content to improve compression ratio.")

	compressed, err := compressor.Compress(original)
	if err != nil {
		t.Fatalf("Failed to compress: %v", err)
	}

	decompressed, err := compressor.Decompress(compressed)
	if err != nil {
		t.Fatalf("Failed to decompress: %v", err)
	}

	if !bytes.Equal(original, decompressed) {
		t.Errorf("Decompressed data doesn't match original.\nOriginal: %s\nDecompressed: %s",
			string(original), string(decompressed))
	}

	var compressedBuf bytes.Buffer
	if err := compressor.CompressStream(&compressedBuf, bytes.NewReader(original)); err != nil {
		t.Fatalf("Failed to compress stream: %v", err)
	}

	var decompressedBuf bytes.Buffer
	if err := compressor.DecompressStream(&decompressedBuf, &compressedBuf); err != nil {
		t.Fatalf("Failed to decompress stream: %v", err)
	}

	if !bytes.Equal(original, decompressedBuf.Bytes()) {
		t.Errorf("Stream decompressed data doesn't match original")
	}
}

func TestLZ4CompressionLevels(t *testing.T) {
	original := bytes.Repeat([]byte("arrow batch body "), 200)

	for _, level := range []Level{Fastest, Default, Better, Best} {
		t.Run(level.String(), func(t *testing.T) {
			compressor, err := NewCompressor(&Config{Algorithm: LZ4, Level: level})
			if err != nil {
				t.Fatalf("Failed to create compressor: %v", err)
			}

			compressed, err := compressor.Compress(original)
			if err != nil {
				t.Fatalf("Failed to compress: %v", err)
			}

			decompressed, err := compressor.Decompress(compressed)
			if err != nil {
				t.Fatalf("Failed to decompress: %v", err)
			}

			if !bytes.Equal(original, decompressed) {
				t.Errorf("Level %v: data mismatch", level)
			}
		})
	}
}
