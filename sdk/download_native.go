//go:build !wasm

package sdk

import (
	"fmt"
	"os"
	"path/filepath"
)

func saveFile(dir, filename, mimeType string, data []byte) (*DownloadResult, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	target := filepath.Join(dir, filename)
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", target, err)
	}

	return &DownloadResult{
		Filename: filename,
		MIMEType: mimeType,
		Size:     int64(len(data)),
		Path:     target,
	}, nil
}
