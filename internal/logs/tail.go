package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	maxLineBytes = 1024 * 1024
	defaultPoll  = 250 * time.Millisecond
)

// Options select which lines Tail returns.
type Options struct {
	// Lines caps the result to the most recent matches. Zero returns none
	// and only reports the end offset.
	Lines int
	// Match keeps only lines containing this substring, typically a run id.
	Match string
}

// Result holds matching lines and the offset just past the last byte read.
type Result struct {
	Lines  []string
	Offset int64
}

// Tail returns the last opts.Lines lines of path that satisfy opts.Match. A
// missing file yields an empty result.
func Tail(path string, opts Options) (Result, error) {
	file, err := openLog(path)
	if err != nil || file == nil {
		return Result{}, err
	}
	defer file.Close()

	limit := opts.Lines
	var ring []string
	if limit > 0 {
		ring = make([]string, limit)
	}
	count, idx := 0, 0
	err = scanLines(file, opts.Match, func(line string) {
		if limit <= 0 {
			return
		}
		ring[idx] = line
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return Result{}, err
	}
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return Result{}, fmt.Errorf("determine log offset: %w", err)
	}

	lines := make([]string, count)
	if count == limit && limit > 0 {
		for i := range count {
			lines[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return Result{Lines: lines, Offset: offset}, nil
}

// Follow polls path from offset and calls emit for each appended line that
// satisfies match. It returns when ctx ends. When the file shrinks, as after
// rotation, reading restarts from the beginning.
func Follow(ctx context.Context, path string, offset int64, match string, poll time.Duration, emit func(string)) error {
	if poll <= 0 {
		poll = defaultPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, match, emit)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, match string, emit func(string)) (int64, error) {
	file, err := openLog(path)
	if err != nil || file == nil {
		return 0, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	// Only complete lines are consumed so a half-written entry is retried.
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return offset, nil
			}
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if match == "" || strings.Contains(line, match) {
			emit(line)
		}
	}
}

func openLog(path string) (*os.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("log path %q is a directory", path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

func scanLines(r io.Reader, match string, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if match == "" || strings.Contains(line, match) {
			fn(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read log file: %w", err)
	}
	return nil
}
