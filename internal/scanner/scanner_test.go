package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metadb-builder/internal/config"
	"metadb-builder/internal/errs"
	"metadb-builder/test/mocks"
)

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestScanner() *FileScanner {
	cfg := config.DefaultScanConfig
	return NewFileScanner(&cfg, mocks.NewMockLogger())
}

func TestScanProject_SupportedExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/dao/UserDao.java", "public class UserDao {}")
	writeFile(t, root, "src/resources/UserMapper.xml", "<mapper/>")
	writeFile(t, root, "web/user.jsp", "<html/>")
	writeFile(t, root, "README.md", "readme")
	writeFile(t, root, "pom.properties", "version=1")

	files, err := newTestScanner().ScanProject(root)
	require.NoError(t, err)

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.RelPath)
	}
	assert.ElementsMatch(t, []string{"src/dao/UserDao.java", "src/resources/UserMapper.xml", "web/user.jsp"}, paths)
}

func TestScanProject_FileMetadata(t *testing.T) {
	root := t.TempDir()
	content := "public class UserDao {\n}\n"
	writeFile(t, root, "UserDao.java", content)

	files, err := newTestScanner().ScanProject(root)
	require.NoError(t, err)
	require.Len(t, files, 1)

	f := files[0]
	assert.Equal(t, "UserDao.java", f.Name)
	assert.Equal(t, []byte(content), f.Content)
	assert.Equal(t, 2, f.LineCount)
	assert.NotEmpty(t, f.Hash)

	// 哈希只取决于内容
	assert.Equal(t, newTestScanner().CalculateFileHash([]byte(content)), f.Hash)
}

func TestScanProject_IgnorePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/UserDao.java", "public class UserDao {}")
	writeFile(t, root, "node_modules/lib/Ignored.java", "public class Ignored {}")
	writeFile(t, root, ".hidden/Secret.java", "public class Secret {}")

	files, err := newTestScanner().ScanProject(root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "src/UserDao.java", files[0].RelPath)
}

func TestScanProject_GitignoreMerged(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "generated/\n# comment line\n")
	writeFile(t, root, "src/UserDao.java", "public class UserDao {}")
	writeFile(t, root, "generated/GenDao.java", "public class GenDao {}")

	files, err := newTestScanner().ScanProject(root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "src/UserDao.java", files[0].RelPath)
}

func TestScanProject_MaxFileSize(t *testing.T) {
	root := t.TempDir()
	cfg := config.DefaultScanConfig
	cfg.MaxFileSizeKB = 1
	writeFile(t, root, "Small.java", "public class Small {}")

	big := make([]byte, 2048)
	for i := range big {
		big[i] = 'x'
	}
	writeFile(t, root, "Big.java", string(big))

	files, err := NewFileScanner(&cfg, mocks.NewMockLogger()).ScanProject(root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "Small.java", files[0].RelPath)
}

func TestScanProject_UnreadableRoot(t *testing.T) {
	_, err := newTestScanner().ScanProject(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.ErrorIs(t, err, errs.ErrProjectRootUnreadable)
}
