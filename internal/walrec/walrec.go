// Package walrec implements the text write-ahead log used to recover an
// unflushed memtable: one record per line, "PUT <key> <value>\n" or
// "DEL <key>\n". The open/append/sync/truncate shape mirrors
// wal_writer.go in the reference, simplified to synchronous writes
// since the engine is single-writer (spec §5) and needs no background
// flush goroutine.
package walrec

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const putPrefix = "PUT "
const delPrefix = "DEL "

// Log is a single decoded WAL record.
type Log struct {
	IsDelete bool
	Key      uint64
	Value    []byte
}

// Writer appends records to the WAL file, fsyncing before each call
// returns so a crash right after Put/Del cannot lose the record.
type Writer struct {
	f *os.File
}

// OpenWriter opens (creating if absent) the WAL file at path for
// appending.
func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("walrec: open %s: %w", path, err)
	}
	return &Writer{f: f}, nil
}

// Put appends a PUT record for (key, value) and syncs it to disk.
func (w *Writer) Put(key uint64, value []byte) error {
	line := putPrefix + strconv.FormatUint(key, 10) + " " + string(value) + "\n"
	return w.writeLine(line)
}

// Del appends a DEL record for key and syncs it to disk.
func (w *Writer) Del(key uint64) error {
	line := delPrefix + strconv.FormatUint(key, 10) + "\n"
	return w.writeLine(line)
}

func (w *Writer) writeLine(line string) error {
	if _, err := w.f.WriteString(line); err != nil {
		return fmt.Errorf("walrec: write: %w", err)
	}
	return w.f.Sync()
}

// Truncate empties the WAL file and rewinds to its start, used whenever
// the memtable it backs is reset (flush or explicit reset).
func (w *Writer) Truncate() error {
	if err := w.f.Truncate(0); err != nil {
		return fmt.Errorf("walrec: truncate: %w", err)
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("walrec: seek: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	return w.f.Close()
}

// Replay reads every record from the WAL file at path in order, calling
// fn for each. A missing file is treated as an empty log, not an error.
func Replay(path string, fn func(Log) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("walrec: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<24)
	for scanner.Scan() {
		line := scanner.Text()
		log, ok, err := parseLine(line)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fn(log); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func parseLine(line string) (Log, bool, error) {
	switch {
	case strings.HasPrefix(line, putPrefix):
		rest := line[len(putPrefix):]
		sp := strings.IndexByte(rest, ' ')
		if sp < 0 {
			// empty value
			key, err := strconv.ParseUint(rest, 10, 64)
			if err != nil {
				return Log{}, false, fmt.Errorf("walrec: bad PUT record %q: %w", line, err)
			}
			return Log{Key: key, Value: []byte{}}, true, nil
		}
		key, err := strconv.ParseUint(rest[:sp], 10, 64)
		if err != nil {
			return Log{}, false, fmt.Errorf("walrec: bad PUT record %q: %w", line, err)
		}
		return Log{Key: key, Value: []byte(rest[sp+1:])}, true, nil
	case strings.HasPrefix(line, delPrefix):
		rest := line[len(delPrefix):]
		key, err := strconv.ParseUint(rest, 10, 64)
		if err != nil {
			return Log{}, false, fmt.Errorf("walrec: bad DEL record %q: %w", line, err)
		}
		return Log{IsDelete: true, Key: key}, true, nil
	default:
		return Log{}, false, nil
	}
}
