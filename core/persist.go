package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PersistDownload writes data to target through a temp file in the same
// directory, so target is either untouched or complete.
func PersistDownload(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", target, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", target, err)
	}

	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move download into %s: %w", target, err)
	}

	return nil
}

// UniqueDownloadPath joins dir and name, adding a timestamp suffix when the
// file already exists.
func UniqueDownloadPath(dir, name string) string {
	base := filepath.Base(name)
	filePath := filepath.Join(dir, base)

	if _, err := os.Stat(filePath); err == nil {
		ext := filepath.Ext(base)
		stem := strings.TrimSuffix(base, ext)
		filePath = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, time.Now().Unix(), ext))
	}

	return filePath
}
