package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed assets/servery.yaml
var defaultConfig []byte

//go:embed assets/fabric.toml
var defaultTemplate []byte

// WriteDefaultConfig writes the commented default config to path unless a
// file is already there. It reports whether it wrote one.
func WriteDefaultConfig(path string) (bool, error) {
	return writeIfMissing(path, defaultConfig)
}

// WriteDefaultTemplate does the same for the default Fabric server template.
func WriteDefaultTemplate(path string) (bool, error) {
	return writeIfMissing(path, defaultTemplate)
}

func writeIfMissing(path string, content []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	// O_EXCL so two processes racing on first start do not clobber each other
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
