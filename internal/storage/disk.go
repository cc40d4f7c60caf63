package storage

import (
	"errors"
	"io/fs"
	"path/filepath"
)

// sqliteCompanions are the files SQLite keeps next to a WAL-mode database.
var sqliteCompanions = []string{"-wal", "-shm"}

// DiskUsageBytes sums the on-disk size of the corpus database and the lemma index.
// Directories are walked recursively; a database file also counts its WAL companions.
// Empty, in-memory and missing paths contribute nothing.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" || p == memoryDSN {
			continue
		}
		n, isFile, err := treeSize(p)
		if err != nil {
			return 0, err
		}
		total += n
		if !isFile {
			continue
		}
		for _, suffix := range sqliteCompanions {
			if n, _, err := treeSize(p + suffix); err == nil {
				total += n
			}
		}
	}
	return total, nil
}

// treeSize returns the size of root, which may be a file or a directory.
func treeSize(root string) (size int64, isFile bool, err error) {
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root && errors.Is(walkErr, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if path == root {
			isFile = true
		}
		size += info.Size()
		return nil
	})
	return size, isFile, err
}
