package chat

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

func compressBody(body string) (string, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(body)); err != nil {
		return "", fmt.Errorf("failed to compress body: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize compression: %w", err)
	}
	return buf.String(), nil
}

func decompressBody(body string) (string, error) {
	r, err := gzip.NewReader(bytes.NewReader([]byte(body)))
	if err != nil {
		return "", fmt.Errorf("failed to open compressed body: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to decompress body: %w", err)
	}
	return string(out), nil
}
