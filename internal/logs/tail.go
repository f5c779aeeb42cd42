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

	"github.com/fsnotify/fsnotify"
)

const maxLineBytes = 1024 * 1024

// Options narrows which lines are returned.
type Options struct {
	// Lines caps how many trailing lines Last returns. Zero means none.
	Lines int
	// Match keeps only lines containing the substring.
	Match string
}

func (o Options) keep(line string) bool {
	return o.Match == "" || strings.Contains(line, o.Match)
}

// Last returns up to opts.Lines trailing lines and the offset of the file end.
// A missing file yields no lines and offset zero.
func Last(path string, opts Options) ([]string, int64, error) {
	file, err := open(path)
	if err != nil || file == nil {
		return nil, 0, err
	}
	defer file.Close()

	limit := opts.Lines
	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]string, 0, limit)
	start := 0
	end, err := scan(file, func(line string) {
		if !opts.keep(line) {
			return
		}
		if len(ring) < limit {
			ring = append(ring, line)
			return
		}
		ring[start] = line
		start = (start + 1) % limit
	})
	if err != nil {
		return nil, 0, err
	}
	lines := append(ring[start:len(ring):len(ring)], ring[:start]...)
	return lines, end, nil
}

// Follow calls emit for each line appended after offset until ctx ends.
// If the file shrinks below offset it is treated as rotated and read from the start.
func Follow(ctx context.Context, path string, offset int64, opts Options, emit func(string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create log watcher: %w", err)
	}
	defer watcher.Close()
	// Watching may fail before the daemon has created the file; polling covers that.
	_ = watcher.Add(path)
	watching := len(watcher.WatchList()) > 0

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, opts, emit)
		if err != nil {
			return err
		}
		offset = next
		if !watching {
			watching = watcher.Add(path) == nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case event, ok := <-watcher.Events:
			if ok && event.Has(fsnotify.Remove|fsnotify.Rename) {
				_ = watcher.Remove(path)
				watching = false
			}
		case err, ok := <-watcher.Errors:
			if ok && err != nil {
				return fmt.Errorf("watch log file: %w", err)
			}
		}
	}
}

func readFrom(path string, offset int64, opts Options, emit func(string)) (int64, error) {
	file, err := open(path)
	if err != nil || file == nil {
		return 0, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		return offset, nil
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	// Only complete lines are emitted; a partial trailing write is picked up next round.
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		text := strings.TrimRight(line, "\r\n")
		if opts.keep(text) {
			emit(text)
		}
	}
}

func open(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("log path %q is a directory", path)
	}
	return file, nil
}

func scan(file *os.File, fn func(string)) (int64, error) {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read log file: %w", err)
	}
	end, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("seek log file: %w", err)
	}
	return end, nil
}
