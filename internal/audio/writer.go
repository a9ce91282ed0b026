package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"scribe/internal/fileutil"
)

// EncodeWAV renders buf as a mono 16-bit PCM WAV file image.
func EncodeWAV(buf Buffer) ([]byte, error) {
	if buf.SampleRate <= 0 {
		return nil, fmt.Errorf("encode wav: invalid sample rate %d", buf.SampleRate)
	}
	dataSize := len(buf.Samples) * 2
	var out bytes.Buffer
	out.Grow(44 + dataSize)

	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(36+dataSize))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	_ = binary.Write(&out, binary.LittleEndian, uint32(16))
	_ = binary.Write(&out, binary.LittleEndian, uint16(formatPCM))
	_ = binary.Write(&out, binary.LittleEndian, uint16(1))
	_ = binary.Write(&out, binary.LittleEndian, uint32(buf.SampleRate))
	_ = binary.Write(&out, binary.LittleEndian, uint32(buf.SampleRate*2))
	_ = binary.Write(&out, binary.LittleEndian, uint16(2))
	_ = binary.Write(&out, binary.LittleEndian, uint16(16))
	out.WriteString("data")
	_ = binary.Write(&out, binary.LittleEndian, uint32(dataSize))
	_ = binary.Write(&out, binary.LittleEndian, buf.Samples)
	return out.Bytes(), nil
}

// WriteWAV atomically writes buf to path.
func WriteWAV(path string, buf Buffer) error {
	data, err := EncodeWAV(buf)
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, data, 0o644)
}

// LoadChunkSamples reads a chunk's WAV file back into its sample buffer.
func LoadChunkSamples(c *Chunk) error {
	if c.Path == "" {
		return fmt.Errorf("chunk %d: no audio path", c.Index)
	}
	w, err := OpenWAV(c.Path)
	if err != nil {
		return err
	}
	defer w.Close()
	buf, err := w.ReadRange(0, w.Duration())
	if err != nil {
		return err
	}
	c.SampleRate = buf.SampleRate
	c.Samples = buf.Samples
	return nil
}

// Exists reports whether the chunk file is present.
func (c *Chunk) Exists() bool {
	if c.Path == "" {
		return false
	}
	_, err := os.Stat(c.Path)
	return err == nil
}
