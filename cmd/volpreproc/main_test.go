package main

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBadFlag(t *testing.T) {
	assert.Equal(t, 2, run([]string{"-no-such-flag"}))
}

func TestRunInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "volpreproc.yaml")
	assert.Equal(t, 0, run([]string{"-config", path, "-init-config"}))
	assert.FileExists(t, path)
}

// A failing run exits with status 1 after its error reached the log file.
func TestRunFailureIsLogged(t *testing.T) {
	dir := t.TempDir()
	tf := filepath.Join(dir, "tf.txt")
	require.NoError(t, os.WriteFile(tf, []byte("0 1\n1 1\n"), 0644))
	logFile := filepath.Join(dir, "run.log")
	missing := filepath.Join(dir, "missing.raw")

	code := run([]string{
		"-config", filepath.Join(dir, "none.yaml"),
		"-input", missing,
		"-dims", "2,2,2",
		"-tf", tf,
		"-out", filepath.Join(dir, "out"),
		"-rmap", filepath.Join(dir, "rmap.bin"),
		"-log", logFile,
	})
	assert.Equal(t, 1, code)
	log, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(log), "run failed")
	assert.Contains(t, string(log), missing)
}

func TestRunSucceeds(t *testing.T) {
	dir := t.TempDir()
	tf := filepath.Join(dir, "tf.txt")
	require.NoError(t, os.WriteFile(tf, []byte("0 1\n1 1\n"), 0644))
	raw, err := binary.Append(nil, binary.LittleEndian, make([]uint8, 64))
	require.NoError(t, err)
	rawPath := filepath.Join(dir, "volume.raw")
	require.NoError(t, os.WriteFile(rawPath, raw, 0644))
	out := filepath.Join(dir, "out")

	code := run([]string{
		"-config", filepath.Join(dir, "none.yaml"),
		"-input", rawPath,
		"-dims", "4,4,4",
		"-blocks", "2,2,2",
		"-tf", tf,
		"-out", out,
		"-prefix", "vol",
		"-rmap", filepath.Join(dir, "rmap.bin"),
		"-buffer", "1KiB",
		"-log", filepath.Join(dir, "run.log"),
	})
	assert.Equal(t, 0, code)
	assert.FileExists(t, filepath.Join(out, "vol_2-2-2_0.1-1.bin"))
}
