package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileWriter appends log lines to dir/filename and rotates by size or age.
// Rotated files are gzipped and only the newest maxFiles are kept.
type FileWriter struct {
	mu           sync.Mutex
	dir          string
	filename     string
	maxSize      int64
	maxAge       time.Duration
	maxFiles     int
	current      *os.File
	currentSize  int64
	lastRotation time.Time
	now          func() time.Time
	pending      sync.WaitGroup
}

// NewFileWriter creates the directory if needed and opens the active log file.
func NewFileWriter(dir, filename string, maxSizeMB, maxFiles int) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxFiles <= 0 {
		maxFiles = 5
	}
	fw := &FileWriter{
		dir:      dir,
		filename: filename,
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		maxAge:   24 * time.Hour,
		maxFiles: maxFiles,
		now:      time.Now,
	}
	fw.lastRotation = fw.now()
	if err := fw.open(); err != nil {
		return nil, err
	}
	return fw, nil
}

// Path returns the active log file path.
func (fw *FileWriter) Path() string {
	return filepath.Join(fw.dir, fw.filename)
}

func (fw *FileWriter) open() error {
	f, err := os.OpenFile(fw.Path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	fw.current = f
	fw.currentSize = info.Size()
	return nil
}

func (fw *FileWriter) Write(p []byte) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.currentSize+int64(len(p)) > fw.maxSize || fw.now().Sub(fw.lastRotation) > fw.maxAge {
		if err := fw.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := fw.current.Write(p)
	fw.currentSize += int64(n)
	return n, err
}

func (fw *FileWriter) rotate() error {
	if fw.current != nil {
		if err := fw.current.Close(); err != nil {
			return fmt.Errorf("close current file: %w", err)
		}
	}
	rotated := fmt.Sprintf("%s.%s", fw.Path(), fw.now().Format("20060102-150405"))
	if err := os.Rename(fw.Path(), rotated); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}
	fw.pending.Add(1)
	go func() {
		defer fw.pending.Done()
		compress(rotated)
		fw.prune()
	}()

	if err := fw.open(); err != nil {
		return err
	}
	fw.lastRotation = fw.now()
	return nil
}

func compress(path string) {
	in, err := os.Open(path)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	gz := gzip.NewWriter(out)
	_, copyErr := io.Copy(gz, in)
	closeErr := gz.Close()
	out.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(path + ".gz")
		return
	}
	os.Remove(path)
}

func (fw *FileWriter) prune() {
	matches, err := filepath.Glob(fw.Path() + ".*")
	if err != nil || len(matches) <= fw.maxFiles {
		return
	}
	// rotated names embed a sortable timestamp
	sort.Strings(matches)
	for _, path := range matches[:len(matches)-fw.maxFiles] {
		os.Remove(path)
	}
}

// Close waits for pending compression and closes the active file.
func (fw *FileWriter) Close() error {
	fw.pending.Wait()
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.current != nil {
		return fw.current.Close()
	}
	return nil
}
