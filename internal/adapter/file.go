package adapter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"circuitsync/internal/codec"
	"circuitsync/internal/domain"
	"circuitsync/internal/logging"
)

// documentExtensions are tried in order when locating a device document
var documentExtensions = []string{".json", ".yaml", ".yml"}

// FileSource serves device documents from a directory tree. Documents live
// at <dir>/<circuit>/<TID>.<ext>, falling back to <dir>/<TID>.<ext> for
// devices shared by several circuits.
type FileSource struct {
	dir string
	log *logrus.Entry
}

// NewFileSource creates a source rooted at dir
func NewFileSource(dir string) (*FileSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("document directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document directory %s is not a directory", dir)
	}
	return &FileSource{dir: dir, log: logging.For("file-source")}, nil
}

// Dir returns the root directory
func (s *FileSource) Dir() string { return s.dir }

// DesignedConfig implements service.DesignSource
func (s *FileSource) DesignedConfig(ctx context.Context, circuit domain.Circuit, device domain.Device) (domain.Document, error) {
	return s.Load(ctx, circuit, device)
}

// ObservedConfig implements service.ObservedSource
func (s *FileSource) ObservedConfig(ctx context.Context, circuit domain.Circuit, device domain.Device) (domain.Document, error) {
	return s.Load(ctx, circuit, device)
}

// Load reads and decodes the document for a device
func (s *FileSource) Load(ctx context.Context, circuit domain.Circuit, device domain.Device) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.locate(circuit.ID, device.TID)
	if err != nil {
		return nil, err
	}

	c, err := codec.ForPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStateUnavailable, err)
	}
	defer f.Close()

	doc, err := c.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrStateUnavailable, path, err)
	}
	s.log.WithFields(logrus.Fields{"circuit": circuit.ID, "device": device.Ref(), "path": path}).Debug("Loaded document")
	return doc, nil
}

func (s *FileSource) locate(circuitID, tid string) (string, error) {
	dirs := []string{s.dir}
	if circuitID != "" {
		dirs = []string{filepath.Join(s.dir, safeName(circuitID)), s.dir}
	}
	for _, dir := range dirs {
		for _, name := range []string{tid, strings.ToUpper(tid), strings.ToLower(tid)} {
			for _, ext := range documentExtensions {
				path := filepath.Join(dir, safeName(name)+ext)
				if info, err := os.Stat(path); err == nil && !info.IsDir() {
					return path, nil
				} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
					return "", fmt.Errorf("%w: %v", domain.ErrStateUnavailable, err)
				}
			}
		}
	}
	return "", fmt.Errorf("%w: no document for %s in %s", domain.ErrStateUnavailable, tid, s.dir)
}

// safeName keeps identifiers from escaping the directory
func safeName(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	if name == "." || name == ".." {
		return "_"
	}
	return name
}

// ResultWriter writes every result it receives to <dir>/<circuit>/<device>.<format>
type ResultWriter struct {
	dir   string
	codec codec.Codec
}

// NewResultWriter creates the output directory if needed
func NewResultWriter(dir, format string) (*ResultWriter, error) {
	c, err := codec.ForFormat(format)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("result directory: %w", err)
	}
	return &ResultWriter{dir: dir, codec: c}, nil
}

// Report implements service.Reporter
func (w *ResultWriter) Report(_ context.Context, result *domain.ReconciliationResult) error {
	dir := filepath.Join(w.dir, safeName(result.CircuitID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, safeName(result.DeviceRef)+"."+w.codec.Format())
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := w.codec.Encode(result, f); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
