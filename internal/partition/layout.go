package partition

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Layout names every file the collector keeps under a data root.
//
//	contracts_<year>.csv                      year partition, the commit marker
//	contracts_<year>_<region>.csv             region checkpoint
//	opstina_<year>_status_<k>_from_<m>.txt    progress marker (zero bytes)
//	output/                                   enrichment and report output
type Layout struct {
	Root string
}

func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// Init creates the data root and its output directory.
func (l Layout) Init() error {
	err := os.MkdirAll(l.OutputDir(), 0777)
	if err != nil {
		return fsError("mkdir", l.OutputDir(), err)
	}
	return nil
}

func (l Layout) YearPath(year int) string {
	return filepath.Join(l.Root, fmt.Sprintf("contracts_%d.csv", year))
}

func (l Layout) CheckpointPath(year int, region string) string {
	return filepath.Join(l.Root, fmt.Sprintf("contracts_%d_%s.csv", year, region))
}

func (l Layout) ProgressPath(year, completed, total int) string {
	return filepath.Join(l.Root, fmt.Sprintf("opstina_%d_status_%d_from_%d.txt", year, completed, total))
}

// ConsolidatedPath is the single-file export older deployments produced,
// it is removed before enrichment runs.
func (l Layout) ConsolidatedPath() string {
	return filepath.Join(l.Root, "contracts.csv")
}

func (l Layout) OutputDir() string {
	return filepath.Join(l.Root, "output")
}

func (l Layout) EnrichedPath(year int) string {
	return filepath.Join(l.OutputDir(), fmt.Sprintf("contracts_%d_with_location.xlsx", year))
}

func (l Layout) ReportPath() string {
	return filepath.Join(l.OutputDir(), "contracts.xlsx")
}

func (l Layout) exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fsError("stat", path, err)
}

// YearExists reports whether the partition file of year has been committed.
func (l Layout) YearExists(year int) (bool, error) {
	return l.exists(l.YearPath(year))
}

func (l Layout) CheckpointExists(year int, region string) (bool, error) {
	return l.exists(l.CheckpointPath(year, region))
}

// Checkpoints lists the region checkpoint files of year in lexical order.
func (l Layout) Checkpoints(year int) ([]string, error) {
	pattern := filepath.Join(l.Root, fmt.Sprintf("contracts_%d_*.csv", year))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fsError("glob", pattern, err)
	}
	slices.Sort(matches)
	return matches, nil
}

// ClearCheckpoints removes every region checkpoint of year.
func (l Layout) ClearCheckpoints(year int) error {
	paths, err := l.Checkpoints(year)
	if err != nil {
		return err
	}
	return removeAll(paths)
}

// WriteProgress replaces the progress marker of year. Stale markers are
// removed first so at most one marker exists per year.
func (l Layout) WriteProgress(year, completed, total int) error {
	pattern := filepath.Join(l.Root, fmt.Sprintf("opstina_%d_status_*.txt", year))
	stale, err := filepath.Glob(pattern)
	if err != nil {
		return fsError("glob", pattern, err)
	}
	err = removeAll(stale)
	if err != nil {
		return err
	}

	path := l.ProgressPath(year, completed, total)
	f, err := os.Create(path)
	if err != nil {
		return fsError("create", path, err)
	}
	err = f.Close()
	if err != nil {
		return fsError("close", path, err)
	}
	return nil
}

// Progress returns the completed/total pair encoded by the current marker of
// year, ok is false when there is none.
func (l Layout) Progress(year int) (completed, total int, ok bool, err error) {
	pattern := filepath.Join(l.Root, fmt.Sprintf("opstina_%d_status_*.txt", year))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return 0, 0, false, fsError("glob", pattern, err)
	}
	for _, m := range matches {
		var y int
		_, scanErr := fmt.Sscanf(
			strings.TrimSuffix(filepath.Base(m), ".txt"),
			"opstina_%d_status_%d_from_%d",
			&y, &completed, &total,
		)
		if scanErr == nil && y == year {
			return completed, total, true, nil
		}
	}
	return 0, 0, false, nil
}

// RemoveYear deletes the partition file and the enriched output of year.
func (l Layout) RemoveYear(year int) error {
	return removeAll([]string{l.YearPath(year), l.EnrichedPath(year)})
}

// RemoveConsolidated deletes the legacy consolidated export if present.
func (l Layout) RemoveConsolidated() error {
	return removeAll([]string{l.ConsolidatedPath()})
}

func removeAll(paths []string) error {
	for _, p := range paths {
		err := os.Remove(p)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fsError("remove", p, err)
		}
	}
	return nil
}
