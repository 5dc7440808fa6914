// Package export writes transcript messages and replayable webhook payloads
// as JSON Lines files, optionally gzip-compressed.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/fathom"
	"github.com/otherjamesbrown/fathom-etl/pkg/logging"
)

const (
	jsonlExt = ".jsonl"
	gzipExt  = ".gz"
)

// Writer writes JSONL files into one directory.
type Writer struct {
	dir      string
	compress bool
	logger   logging.Logger
}

// NewWriter creates a writer for dir. With compress set, files get a ".gz"
// suffix and gzip content.
func NewWriter(dir string, compress bool, logger logging.Logger) *Writer {
	return &Writer{
		dir:      dir,
		compress: compress,
		logger:   logger.With(logging.F("component", "jsonl_writer")),
	}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// WriteMessages writes msgs to name, one object per line, and returns the
// final path.
func (w *Writer) WriteMessages(name string, msgs []fathom.Message) (string, error) {
	return w.write(name, func(enc *json.Encoder) error {
		for _, m := range msgs {
			if err := enc.Encode(m); err != nil {
				return fmt.Errorf("encode message %s: %w", m.ID, err)
			}
		}
		return nil
	})
}

// WriteWebhooks writes webhook payloads to name, one per line.
func (w *Writer) WriteWebhooks(name string, hooks []*fathom.Webhook) (string, error) {
	return w.write(name, func(enc *json.Encoder) error {
		for _, h := range hooks {
			if err := enc.Encode(h); err != nil {
				return fmt.Errorf("encode webhook %d: %w", h.ID, err)
			}
		}
		return nil
	})
}

// write encodes into a temporary file and renames it into place so readers
// never see a partial file.
func (w *Writer) write(name string, encode func(*json.Encoder) error) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	final := filepath.Join(w.dir, w.fileName(name))
	tmp, err := os.CreateTemp(w.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after rename

	if err := w.encodeTo(tmp, encode); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", final, err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("rename to %s: %w", final, err)
	}

	w.logger.Debug("JSONL written", logging.F("path", final))
	return final, nil
}

func (w *Writer) encodeTo(f io.Writer, encode func(*json.Encoder) error) error {
	buf := bufio.NewWriter(f)
	var out io.Writer = buf
	var zw *gzip.Writer
	if w.compress {
		zw = gzip.NewWriter(buf)
		out = zw
	}

	if err := encode(NewEncoder(out)); err != nil {
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("finish gzip stream: %w", err)
		}
	}
	return buf.Flush()
}

// fileName adds the JSONL and compression extensions when missing.
func (w *Writer) fileName(name string) string {
	name = strings.TrimSuffix(name, gzipExt)
	if !strings.HasSuffix(name, jsonlExt) {
		name += jsonlExt
	}
	if w.compress {
		name += gzipExt
	}
	return name
}

// NewEncoder returns a JSONL encoder that leaves HTML characters unescaped.
func NewEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// WriteJSONL streams msgs to w, one object per line.
func WriteJSONL(w io.Writer, msgs []fathom.Message) error {
	enc := NewEncoder(w)
	for _, m := range msgs {
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("encode message %s: %w", m.ID, err)
		}
	}
	return nil
}

// BackfillName returns a time-ordered unique file name for a backfill batch.
func BackfillName() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate file id: %w", err)
	}
	return id.String() + jsonlExt, nil
}

// ReadMessages reads a file written by WriteMessages, compressed or not.
func ReadMessages(path string) ([]fathom.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, gzipExt) {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	var msgs []fathom.Message
	dec := json.NewDecoder(r)
	for dec.More() {
		var m fathom.Message
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
