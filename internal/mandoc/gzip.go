package mandoc

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadSource reads a manual page source file, transparently
// decompressing gzip. Unlike Render it does not chase ".so" includes.
func ReadSource(path string) (string, error) {
	return readMaybeGzipped(path)
}

// readMaybeGzipped reads a file, transparently decompressing when the
// path ends with ".gz".
func readMaybeGzipped(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open manual source: %w", err)
	}
	defer func() { _ = file.Close() }()

	var reader io.Reader = file
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return "", fmt.Errorf("read gzip: %w", err)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read manual source: %w", err)
	}
	return string(bytes.TrimSpace(data)), nil
}
