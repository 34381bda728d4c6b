package repository

import (
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	memoryPath    = ":memory:"
	sqlitePragmas = "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
)

// sqliteDSN maps a file path to a modernc.org/sqlite DSN, creating the
// parent directory. ":memory:" gives a private in-memory database.
func sqliteDSN(path string) (string, error) {
	switch path {
	case "":
		path = "./kestrel.db"
	case memoryPath:
		return "file::memory:?_pragma=foreign_keys(ON)", nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create database directory: %w", err)
		}
	}
	return "file:" + path + "?" + sqlitePragmas, nil
}
