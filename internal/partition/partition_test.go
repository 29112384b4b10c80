package partition

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func sampleRow(contract, object string) Row {
	return Row{
		ContractID:          contract,
		Date:                "15.03.2015",
		ContractType:        "Kupoprodajni ugovor",
		ContractDescription: "Promet, \"stan\"",
		Price:               "45000",
		Currency:            "EUR",
		ObjectID:            object,
		ObjectCategory:      "Stan",
		Area:                AreaMissing,
		Latitude:            "44.8125",
		Longitude:           "20.4612",
	}
}

func TestDedup(t *testing.T) {
	a := sampleRow("1", "10")
	b := sampleRow("1", "11")
	c := sampleRow("2", "20")

	out := Dedup([]Row{a, b, a, c, b, a})
	if diff := cmp.Diff([]Row{a, b, c}, out); diff != "" {
		t.Fatalf("dedup mismatch (-want +got):\n%s", diff)
	}

	// rows differing in a single column are kept
	d := a
	d.Longitude = "20.4613"
	require.Len(t, Dedup([]Row{a, d}), 2)
	require.Empty(t, Dedup(nil))
}

func TestWriteReadRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contracts_2015.csv")
	rows := []Row{sampleRow("1", "10"), sampleRow("2", "20")}

	require.NoError(t, WriteRows(path, rows))
	read, err := ReadRows(path)
	require.NoError(t, err)
	if diff := cmp.Diff(rows, read); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	// no temp files are left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestReadRowsEmpty(t *testing.T) {
	dir := t.TempDir()

	zero := filepath.Join(dir, "zero.csv")
	require.NoError(t, os.WriteFile(zero, nil, 0666))
	rows, err := ReadRows(zero)
	require.NoError(t, err)
	require.Empty(t, rows)

	headerOnly := filepath.Join(dir, "header.csv")
	require.NoError(t, WriteRows(headerOnly, nil))
	rows, err = ReadRows(headerOnly)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestReadRowsBadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0666))

	_, err := ReadRows(path)
	var fsErr *FilesystemError
	require.True(t, errors.As(err, &fsErr))
	require.Equal(t, path, fsErr.Path)
}

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("data")
	require.Equal(t, filepath.Join("data", "contracts_2015.csv"), l.YearPath(2015))
	require.Equal(t, filepath.Join("data", "contracts_2015_70017.csv"), l.CheckpointPath(2015, "70017"))
	require.Equal(t, filepath.Join("data", "opstina_2015_status_3_from_168.txt"), l.ProgressPath(2015, 3, 168))
	require.Equal(t, filepath.Join("data", "output", "contracts_2015_with_location.xlsx"), l.EnrichedPath(2015))
	require.Equal(t, filepath.Join("data", "output", "contracts.xlsx"), l.ReportPath())
}

func TestCheckpoints(t *testing.T) {
	l := NewLayout(t.TempDir())
	require.NoError(t, l.Init())

	require.NoError(t, WriteRows(l.CheckpointPath(2015, "1"), nil))
	require.NoError(t, WriteRows(l.CheckpointPath(2015, "2"), nil))
	require.NoError(t, WriteRows(l.CheckpointPath(2016, "1"), nil))
	require.NoError(t, WriteRows(l.YearPath(2015), nil))

	paths, err := l.Checkpoints(2015)
	require.NoError(t, err)
	require.Equal(t, []string{l.CheckpointPath(2015, "1"), l.CheckpointPath(2015, "2")}, paths)

	require.NoError(t, l.ClearCheckpoints(2015))
	paths, err = l.Checkpoints(2015)
	require.NoError(t, err)
	require.Empty(t, paths)

	// other years and the partition itself are untouched
	exists, err := l.CheckpointExists(2016, "1")
	require.NoError(t, err)
	require.True(t, exists)
	exists, err = l.YearExists(2015)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestWriteProgressKeepsSingleMarker(t *testing.T) {
	l := NewLayout(t.TempDir())

	_, _, ok, err := l.Progress(2015)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, l.WriteProgress(2015, 1, 3))
	require.NoError(t, l.WriteProgress(2015, 2, 3))
	require.NoError(t, l.WriteProgress(2016, 1, 3))

	matches, err := filepath.Glob(filepath.Join(l.Root, "opstina_2015_status_*.txt"))
	require.NoError(t, err)
	require.Equal(t, []string{l.ProgressPath(2015, 2, 3)}, matches)

	info, err := os.Stat(matches[0])
	require.NoError(t, err)
	require.Zero(t, info.Size())

	completed, total, ok, err := l.Progress(2015)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, completed)
	require.Equal(t, 3, total)
}

func TestRemoveYear(t *testing.T) {
	l := NewLayout(t.TempDir())
	require.NoError(t, l.Init())
	require.NoError(t, WriteRows(l.YearPath(2024), nil))
	require.NoError(t, os.WriteFile(l.EnrichedPath(2024), []byte("x"), 0666))

	require.NoError(t, l.RemoveYear(2024))
	require.NoError(t, l.RemoveYear(2024))

	exists, err := l.YearExists(2024)
	require.NoError(t, err)
	require.False(t, exists)
	_, err = os.Stat(l.EnrichedPath(2024))
	require.True(t, os.IsNotExist(err))
}
