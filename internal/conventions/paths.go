package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default labshot data directory name (relative to home).
	DefaultDataDir = ".labshot"
	// DBFile is the SQLite database filename inside the data directory.
	DBFile = "labshot.db"
	// ArtifactsDir is the subdirectory rendered artifacts are stored under.
	ArtifactsDir = "artifacts"
)

// DBPath returns the SQLite database path for a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}

// ArtifactsPath returns the artifact store root for a data directory.
func ArtifactsPath(dataDir string) string {
	return filepath.Join(dataDir, ArtifactsDir)
}
