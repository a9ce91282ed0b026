package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
)

// ErrUnsupportedFormat reports a WAV file the reader cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported wav format")

// WAVInfo describes a parsed WAV header.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Frames        int64
}

// Duration returns the audio length in seconds.
func (i WAVInfo) Duration() float64 {
	if i.SampleRate <= 0 {
		return 0
	}
	return float64(i.Frames) / float64(i.SampleRate)
}

// WAVFile is a random-access reader over a 16-bit PCM WAV file.
type WAVFile struct {
	f          *os.File
	info       WAVInfo
	dataOffset int64
	blockAlign int
}

// OpenWAV opens path and parses its RIFF header.
func OpenWAV(path string) (*WAVFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	w := &WAVFile{f: f}
	if err := w.parse(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// Info returns the parsed header.
func (w *WAVFile) Info() WAVInfo { return w.info }

func (w *WAVFile) SampleRate() int   { return w.info.SampleRate }
func (w *WAVFile) Duration() float64 { return w.info.Duration() }

// Close releases the underlying file.
func (w *WAVFile) Close() error {
	return w.f.Close()
}

func (w *WAVFile) parse() error {
	var riff [12]byte
	if _, err := io.ReadFull(w.f, riff[:]); err != nil {
		return fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedFormat)
	}

	var haveFmt bool
	offset := int64(12)
	for {
		var header [8]byte
		if _, err := w.f.ReadAt(header[:], offset); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: missing data chunk", ErrUnsupportedFormat)
			}
			return fmt.Errorf("read chunk header: %w", err)
		}
		id := string(header[0:4])
		size := int64(binary.LittleEndian.Uint32(header[4:8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 {
				return fmt.Errorf("%w: fmt chunk too small", ErrUnsupportedFormat)
			}
			buf := make([]byte, 16)
			if _, err := w.f.ReadAt(buf, body); err != nil {
				return fmt.Errorf("read fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(buf[0:2])
			w.info.Channels = int(binary.LittleEndian.Uint16(buf[2:4]))
			w.info.SampleRate = int(binary.LittleEndian.Uint32(buf[4:8]))
			w.blockAlign = int(binary.LittleEndian.Uint16(buf[12:14]))
			w.info.BitsPerSample = int(binary.LittleEndian.Uint16(buf[14:16]))
			if format != formatPCM && format != formatExtensible {
				return fmt.Errorf("%w: format tag %d (want PCM)", ErrUnsupportedFormat, format)
			}
			if w.info.BitsPerSample != 16 {
				return fmt.Errorf("%w: %d bits per sample (want 16)", ErrUnsupportedFormat, w.info.BitsPerSample)
			}
			if w.info.Channels <= 0 || w.info.SampleRate <= 0 || w.blockAlign != 2*w.info.Channels {
				return fmt.Errorf("%w: inconsistent fmt chunk", ErrUnsupportedFormat)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return fmt.Errorf("%w: data chunk before fmt chunk", ErrUnsupportedFormat)
			}
			stat, err := w.f.Stat()
			if err != nil {
				return err
			}
			// Streaming writers leave the size as 0 or 0xFFFFFFFF; trust the file length instead.
			if available := stat.Size() - body; size == 0 || size > available {
				size = available
			}
			w.dataOffset = body
			w.info.Frames = size / int64(w.blockAlign)
			return nil
		}
		// Chunks are word aligned.
		offset = body + size + size%2
	}
}

// ReadRange returns mono samples for [start, end) seconds, clamped to the file.
func (w *WAVFile) ReadRange(start, end float64) (Buffer, error) {
	from := min(FrameAt(start, w.info.SampleRate), w.info.Frames)
	to := min(FrameAt(end, w.info.SampleRate), w.info.Frames)
	out := Buffer{SampleRate: w.info.SampleRate}
	if to <= from {
		return out, nil
	}
	raw := make([]byte, (to-from)*int64(w.blockAlign))
	if _, err := w.f.ReadAt(raw, w.dataOffset+from*int64(w.blockAlign)); err != nil && !errors.Is(err, io.EOF) {
		return out, fmt.Errorf("read samples: %w", err)
	}
	out.Samples = downmix(raw, w.info.Channels)
	return out, nil
}

func downmix(raw []byte, channels int) []int16 {
	frames := len(raw) / (2 * channels)
	samples := make([]int16, frames)
	for i := range frames {
		if channels == 1 {
			samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
			continue
		}
		var sum int32
		base := i * 2 * channels
		for c := range channels {
			sum += int32(int16(binary.LittleEndian.Uint16(raw[base+2*c:])))
		}
		samples[i] = int16(sum / int32(channels))
	}
	return samples
}
