package scanner

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// sink is the single-writer output stream for scan records. File mode writes
// a sibling .tmp and publishes it by rename on clean close; resume mode
// appends to the existing file; stdout mode writes directly.
type sink struct {
	w         *bufio.Writer
	file      *os.File
	tmpPath   string
	finalPath string
}

// openSink prepares the output stream. An empty path means stdout.
func openSink(path string, appendMode bool, stdout io.Writer) (*sink, error) {
	if path == "" {
		return &sink{w: bufio.NewWriter(stdout)}, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	if appendMode {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		return &sink{w: bufio.NewWriter(f), file: f, finalPath: path}, nil
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, err
	}
	return &sink{w: bufio.NewWriter(f), file: f, tmpPath: tmpPath, finalPath: path}, nil
}

// writeLine emits one NDJSON line.
func (s *sink) writeLine(line []byte) error {
	if _, err := s.w.Write(line); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

// close releases the sink. On success in temp-file mode the output is
// published atomically; on failure the temp file is left in place for
// diagnosis.
func (s *sink) close(success bool) error {
	flushErr := s.w.Flush()
	if s.file == nil {
		return flushErr
	}
	closeErr := s.file.Close()
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return closeErr
	}
	if !success || s.tmpPath == "" {
		return nil
	}
	if err := os.Rename(s.tmpPath, s.finalPath); err != nil {
		return fmt.Errorf("publishing output: %w", err)
	}
	return nil
}
