package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Pragmas applied to every on-disk database. The engine writes through on
// every committed mutation, so WAL and a generous busy timeout matter more
// here than raw write throughput.
const filePragmas = "mode=rwc&_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"

// FileDSN resolves a filesystem path into the on-disk DSN stakingd opens at
// startup.
func FileDSN(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", ErrPathRequired
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve storage path: %w", err)
	}
	return "file:" + abs + "?" + filePragmas, nil
}

// MemoryDSN builds a shared in-memory DSN. Connections opened with the same
// name see the same database; it is dropped once the last connection closes.
// Tests use this to get isolated stores without touching disk.
func MemoryDSN(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		trimmed = "stakingd"
	}
	return "file:" + trimmed + "?mode=memory&cache=shared"
}
