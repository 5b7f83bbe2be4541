package history

import (
	"os"
	"path/filepath"
)

// WriteSnapshotFile replaces path with data. The data is written and synced to a sibling
// temporary file first and then renamed over path, so a failed write never clobbers the
// previous snapshot.
func WriteSnapshotFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ioError("failed to create directory for %s: %w", path, err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return ioError("failed to create %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return ioError("failed to write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return ioError("failed to sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return ioError("failed to close %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return ioError("failed to replace %s: %w", path, err)
	}
	return nil
}
