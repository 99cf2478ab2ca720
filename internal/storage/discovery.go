package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiscoverBeadsDatabase finds the Beads tracker database used by the beads
// effector. TRIAGE_BEADS_DB wins when set; otherwise the first .beads/*.db
// in the current directory is used. Parent directories are not searched so
// a nested checkout never writes into its parent's tracker.
func DiscoverBeadsDatabase() (string, error) {
	if dbPath := os.Getenv("TRIAGE_BEADS_DB"); dbPath != "" {
		return dbPath, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return discoverBeadsInDir(dir)
}

func discoverBeadsInDir(dir string) (string, error) {
	beadsDir := filepath.Join(dir, ".beads")
	if info, err := os.Stat(beadsDir); err == nil && info.IsDir() {
		entries, err := os.ReadDir(beadsDir)
		if err == nil {
			for _, entry := range entries {
				if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
					continue
				}
				absPath, err := filepath.Abs(filepath.Join(beadsDir, entry.Name()))
				if err != nil {
					return "", fmt.Errorf("failed to get absolute path: %w", err)
				}
				return absPath, nil
			}
		}
	}
	return "", fmt.Errorf(
		"no .beads/*.db found in %s\n"+
			"  Run 'bd init' to create a Beads tracker in this directory\n"+
			"  Or set TRIAGE_BEADS_DB to the database path",
		dir)
}
