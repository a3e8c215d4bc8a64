package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// Entry is one file inside an export bundle.
type Entry struct {
	Name string
	Data []byte
}

// Bundle writes the entries into a single zip archive and returns its bytes.
// Entry names are used as-is, so callers own any directory layout inside the
// archive.
func Bundle(entries []Entry) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, entry := range entries {
		w, err := zw.Create(entry.Name)
		if err != nil {
			return nil, fmt.Errorf("zip: create %s: %w", entry.Name, err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", entry.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close archive: %w", err)
	}
	return buf.Bytes(), nil
}
