// Package workspace manages the research working directory: the topic
// file, the stage subdirectories, and the iteration-numbered JSON
// snapshots that make runs resumable and auditable.
//
// Snapshot files are named {stage}_{iteration}.json. A run that repeats
// an iteration overwrites that iteration's snapshots and removes any
// higher-numbered leftovers from earlier, longer runs, so the directory
// always reflects a single consistent history.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// Well-known names inside the working directory.
const (
	// TopicFile holds the research topic and requirements.
	TopicFile = "research.md"

	// PlanDir holds plan snapshots.
	PlanDir = "plan"

	// SearchDir holds search-stage snapshots.
	SearchDir = "search"

	// ResultsDir holds downloaded-content snapshots.
	ResultsDir = "results"

	// IndexDir holds the content index (chunks and vectors).
	IndexDir = "index"

	// CacheDir holds the cache store.
	CacheDir = "cache"

	// AnswerFile is the final research answer.
	AnswerFile = "answer.md"

	// SourcesFile is the run report listing consulted sources.
	SourcesFile = "sources.md"
)

// dirPerm is the permission for created directories.
const dirPerm = 0750

// filePerm is the permission for snapshot files.
const filePerm = 0600

// ErrNoTopicFile is returned when the working directory has no
// research.md. The topic file is the one thing the user must provide.
var ErrNoTopicFile = errors.New("working directory has no research.md")

// snapshotDirs are the directories swept by Cleanup.
var snapshotDirs = []string{PlanDir, SearchDir, ResultsDir}

// snapshotNameRe parses "{stage}_{iteration}.json".
var snapshotNameRe = regexp.MustCompile(`^(.+)_(\d+)\.json$`)

// Workspace is a handle on one research working directory.
type Workspace struct {
	root string
}

// New creates a handle on the directory at root.
// Call Validate before using it for a run.
func New(root string) *Workspace {
	return &Workspace{root: root}
}

// Root returns the working directory path.
func (w *Workspace) Root() string {
	return w.root
}

// Path joins parts onto the working directory root.
func (w *Workspace) Path(parts ...string) string {
	return filepath.Join(append([]string{w.root}, parts...)...)
}

// Validate checks that the directory is usable for a run: the topic
// file must exist, and the stage subdirectories are created if missing.
func (w *Workspace) Validate() error {
	if _, err := os.Stat(w.Path(TopicFile)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNoTopicFile, w.root)
		}
		return fmt.Errorf("failed to stat topic file: %w", err)
	}

	for _, dir := range []string{PlanDir, SearchDir, ResultsDir, IndexDir, CacheDir} {
		if err := os.MkdirAll(w.Path(dir), dirPerm); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}
	return nil
}

// Topic reads the research topic from the topic file.
func (w *Workspace) Topic() (string, error) {
	data, err := os.ReadFile(w.Path(TopicFile)) //nolint:gosec // Path is inside the validated workspace
	if err != nil {
		return "", fmt.Errorf("failed to read topic file: %w", err)
	}
	return string(data), nil
}

// SnapshotName builds the file name for a stage/iteration pair.
func SnapshotName(stage string, iteration int) string {
	return fmt.Sprintf("%s_%d.json", stage, iteration)
}

// SaveSnapshot writes v as indented JSON to dir/{stage}_{iteration}.json.
func (w *Workspace) SaveSnapshot(dir, stage string, iteration int, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s snapshot: %w", stage, err)
	}

	path := w.Path(dir, SnapshotName(stage, iteration))
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return fmt.Errorf("failed to write %s snapshot: %w", stage, err)
	}
	return nil
}

// LoadSnapshot reads dir/{stage}_{iteration}.json into v.
func (w *Workspace) LoadSnapshot(dir, stage string, iteration int, v any) error {
	path := w.Path(dir, SnapshotName(stage, iteration))
	data, err := os.ReadFile(path) //nolint:gosec // Path is inside the validated workspace
	if err != nil {
		return fmt.Errorf("failed to read %s snapshot: %w", stage, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s snapshot: %w", stage, err)
	}
	return nil
}

// SnapshotExists reports whether dir/{stage}_{iteration}.json exists.
func (w *Workspace) SnapshotExists(dir, stage string, iteration int) bool {
	_, err := os.Stat(w.Path(dir, SnapshotName(stage, iteration)))
	return err == nil
}

// Cleanup removes snapshots with an iteration number greater than
// lastIteration from the plan, search, and results directories.
// Run after a re-run of iteration N so stale snapshots from a previous,
// longer run cannot be mistaken for this run's output.
func (w *Workspace) Cleanup(lastIteration int) error {
	for _, dir := range snapshotDirs {
		entries, err := os.ReadDir(w.Path(dir))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to read %s directory: %w", dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			m := snapshotNameRe.FindStringSubmatch(entry.Name())
			if m == nil {
				continue
			}
			iteration, err := strconv.Atoi(m[2])
			if err != nil || iteration <= lastIteration {
				continue
			}
			if err := os.Remove(w.Path(dir, entry.Name())); err != nil {
				return fmt.Errorf("failed to remove stale snapshot %s: %w", entry.Name(), err)
			}
		}
	}
	return nil
}
