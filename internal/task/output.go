package task

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// OutputStore is an append-only output log for a single promoted background
// task: an in-memory buffer mirrored to a file under the task-output
// directory. Reads (ReadFrom) are served from the in-memory buffer only;
// the file is written, never read back.
type OutputStore struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  []byte
}

// TaskOutputDir returns (creating if necessary) the per-session directory
// that holds background task output files: ~/.gen/task-output/<sessionID>/.
func TaskOutputDir(sessionID string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(homeDir, ".gen", "task-output", sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create task-output directory: %w", err)
	}
	return dir, nil
}

// NewOutputStore creates the backing file for a promoted task's output
// under dir, named after the task id.
func NewOutputStore(dir, id string) (*OutputStore, error) {
	path := filepath.Join(dir, id+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create output store: %w", err)
	}
	return &OutputStore{path: path, file: f}, nil
}

// Append writes data to both the in-memory buffer and the mirrored file.
func (s *OutputStore) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, data...)
	if s.file != nil {
		s.file.Write(data)
	}
}

// ReadFrom returns every byte appended since cursor, plus the cursor to
// resume from on the next call.
func (s *OutputStore) ReadFrom(cursor int) (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cursor < 0 || cursor > len(s.buf) {
		cursor = 0
	}
	chunk := string(s.buf[cursor:])
	return chunk, len(s.buf)
}

// Path returns the mirrored file's path, used as the CLAUDE_ENV_FILE-style
// convention for background task output files (spec §6).
func (s *OutputStore) Path() string {
	return s.path
}

// Close releases the backing file handle.
func (s *OutputStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// filterLines applies an optional regex line filter to a chunk of output,
// keeping only matching lines. An empty pattern returns the chunk as-is.
func filterLines(chunk, pattern string) (string, error) {
	if pattern == "" || chunk == "" {
		return chunk, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid filter regex: %w", err)
	}
	lines := strings.Split(chunk, "\n")
	kept := lines[:0:0]
	for _, line := range lines {
		if re.MatchString(line) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n"), nil
}
