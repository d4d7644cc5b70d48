// Package playback serves rendered videos over HTTP with byte-range support
// so browsers can seek without downloading the whole file.
package playback

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnsafeName is returned for path segments that could escape a root.
var ErrUnsafeName = errors.New("unsafe path segment")

var safeSegment = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidSegment reports whether name is a single safe path component.
func ValidSegment(name string) bool {
	return safeSegment.MatchString(name) && name != "." && name != ".." && !strings.Contains(name, "..")
}

// Join joins segments under root after validating each one.
func Join(root string, segments ...string) (string, error) {
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, root)
	for _, s := range segments {
		if !ValidSegment(s) {
			return "", fmt.Errorf("%w: %q", ErrUnsafeName, s)
		}
		parts = append(parts, s)
	}
	return filepath.Join(parts...), nil
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// ServeFile writes filePath to w, honouring Range and HEAD. A missing file
// yields 404; other I/O failures are returned for the caller to report.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		http.Error(w, "file not found", http.StatusNotFound)
		return nil
	}

	size := stat.Size()
	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType(filePath))
	h.Set("Last-Modified", stat.ModTime().UTC().Format(http.TimeFormat))

	rng, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrInvalidRange):
		// Malformed ranges are ignored and the full body is served.
		rng = nil
	case err != nil:
		return err
	}

	status := http.StatusOK
	length := size
	if rng != nil {
		status = http.StatusPartialContent
		length = rng.ContentLength()
		h.Set("Content-Range", rng.ContentRange(size))
		if _, err := file.Seek(rng.Start, io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek: %w", err)
		}
	}
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := io.CopyN(w, file, length); err != nil && s.logger != nil {
		s.logger.Debug("video copy interrupted", "path", filePath, "error", err)
	}
	return nil
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".mp4" {
		return "video/mp4"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
