package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	srcerrors "github.com/dkallur/srcindex/internal/errors"
)

func testConfig() Config {
	return Config{
		Extension:         ".cs",
		ExcludedDirs:      []string{"bin", "obj", ".git"},
		GeneratedSuffixes: []string{".g.cs", ".designer.cs"},
	}
}

// writeTree creates files under root; paths use forward slashes.
func writeTree(t *testing.T, root string, paths []string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("class A {}"), 0o644))
	}
}

func TestScanner_CollectsMatchingFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, []string{
		"Program.cs",
		"Services/OrderService.cs",
		"README.md",
		"notes.txt",
	})

	files, err := New(testConfig(), nil).Scan(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Contains(t, files, filepath.Join(root, "Program.cs"))
	assert.Contains(t, files, filepath.Join(root, "Services", "OrderService.cs"))
}

func TestScanner_PrunesExcludedDirs(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, []string{
		"src/Keep.cs",
		"bin/Debug/Skipped.cs",
		"obj/Generated.cs",
		"src/BIN/CaseInsensitive.cs",
	})

	files, err := New(testConfig(), nil).Scan(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Contains(t, files[0], "Keep.cs")
}

func TestScanner_SkipsGeneratedSuffixes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, []string{
		"Form1.cs",
		"Form1.Designer.cs",
		"Resources.g.cs",
	})

	files, err := New(testConfig(), nil).Scan(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Contains(t, files[0], "Form1.cs")
}

func TestScanner_ExtensionIsCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, []string{"Upper.CS"})

	files, err := New(testConfig(), nil).Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestScanner_MissingRoot(t *testing.T) {
	_, err := New(testConfig(), nil).Scan(context.Background(), "/does/not/exist")

	require.Error(t, err)
	assert.True(t, errors.Is(err, srcerrors.PathError("", nil)))
}

func TestScanner_RootIsFile(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "single.cs")
	require.NoError(t, os.WriteFile(file, []byte("class A {}"), 0o644))

	_, err := New(testConfig(), nil).Scan(context.Background(), file)
	require.Error(t, err)
}

func TestScanner_CancelledContext(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, []string{"Program.cs"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testConfig(), nil).Scan(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsGeneratedPath(t *testing.T) {
	s := New(testConfig(), nil)

	assert.True(t, s.IsGeneratedPath(filepath.FromSlash("/repo/Form1.Designer.cs")))
	assert.True(t, s.IsGeneratedPath(filepath.FromSlash("/repo/obj/anything.cs")))
	assert.False(t, s.IsGeneratedPath(filepath.FromSlash("/repo/src/Program.cs")))
}
