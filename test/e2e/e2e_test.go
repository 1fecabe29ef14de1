package e2e

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	memfsBin string
	projRoot string
	baseDir  string
)

func TestMain(m *testing.M) {
	if _, err := os.Stat("/dev/fuse"); err != nil {
		fmt.Println("skipping e2e tests: /dev/fuse not available")
		os.Exit(0)
	}
	if _, err := exec.LookPath("fusermount"); err != nil {
		fmt.Println("skipping e2e tests: fusermount not in PATH")
		os.Exit(0)
	}

	os.Exit(run(m))
}

func run(m *testing.M) int {
	// Build MemFS binary once for all tests
	tmpDir, err := os.MkdirTemp("", "memfs-e2e")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpDir) // nolint:errcheck
	baseDir = tmpDir
	memfsBin = filepath.Join(tmpDir, "memfs")

	// Determine project root
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		panic("cannot determine current file path")
	}
	projRoot = filepath.Join(filepath.Dir(thisFile), "..", "..")
	src := filepath.Join(projRoot, "cmd", "main.go")

	// Build with debug symbols
	cmd := exec.Command("go", "build", "-o", memfsBin, "-gcflags=all=-N -l", src)
	if out, err := cmd.CombinedOutput(); err != nil {
		panic(string(out))
	}

	return m.Run()
}

const seedTree = `
nodes:
  - path: /docs
    type: dir
  - path: /docs/readme.txt
    type: file
    content: "Hello, MemFS!\n"
  - path: /readme
    type: symlink
    target: /docs/readme.txt
`

func TestE2EMountAndRead(t *testing.T) {
	mfs := StartMemFS(t, seedTree)
	defer mfs.Stop()

	data, err := os.ReadFile(filepath.Join(mfs.MountDir, "docs", "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Hello, MemFS!\n", string(data))

	info, err := os.Stat(filepath.Join(mfs.MountDir, "docs"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestE2EWriteAndList(t *testing.T) {
	mfs := StartMemFS(t, seedTree)
	defer mfs.Stop()

	dir := filepath.Join(mfs.MountDir, "work")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("bee"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("ay"), 0o644))

	f, err := os.OpenFile(filepath.Join(dir, "a.txt"), os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = f.WriteString(" there")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ay there", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)

	require.NoError(t, os.Truncate(filepath.Join(dir, "b.txt"), 1))
	info, err := os.Stat(filepath.Join(dir, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Size())
}

func TestE2ERenameAndRemove(t *testing.T) {
	mfs := StartMemFS(t, seedTree)
	defer mfs.Stop()

	from := filepath.Join(mfs.MountDir, "docs", "readme.txt")
	to := filepath.Join(mfs.MountDir, "moved.txt")
	require.NoError(t, os.Rename(from, to))

	_, err := os.Stat(from)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	data, err := os.ReadFile(to)
	require.NoError(t, err)
	assert.Equal(t, "Hello, MemFS!\n", string(data))

	// links follow the node, not the name
	data, err = os.ReadFile(filepath.Join(mfs.MountDir, "readme"))
	require.NoError(t, err)
	assert.Equal(t, "Hello, MemFS!\n", string(data))

	require.NoError(t, os.Remove(to))
	require.NoError(t, os.Remove(filepath.Join(mfs.MountDir, "docs")))
	_, err = os.Stat(filepath.Join(mfs.MountDir, "docs"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestE2ERemoveNonEmptyDir(t *testing.T) {
	mfs := StartMemFS(t, seedTree)
	defer mfs.Stop()

	err := os.Remove(filepath.Join(mfs.MountDir, "docs"))
	assert.True(t, errors.Is(err, syscall.ENOTEMPTY), "got %v", err)
}

func TestE2ESymlink(t *testing.T) {
	mfs := StartMemFS(t, seedTree)
	defer mfs.Stop()

	target, err := os.Readlink(filepath.Join(mfs.MountDir, "readme"))
	require.NoError(t, err)
	assert.Equal(t, "docs/readme.txt", target)

	require.NoError(t, os.Symlink("readme.txt", filepath.Join(mfs.MountDir, "docs", "alias")))
	data, err := os.ReadFile(filepath.Join(mfs.MountDir, "docs", "alias"))
	require.NoError(t, err)
	assert.Equal(t, "Hello, MemFS!\n", string(data))

	// links point at nodes, so a missing target is refused
	err = os.Symlink("nowhere", filepath.Join(mfs.MountDir, "dangling"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "got %v", err)
}

func TestE2EPermissions(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("the superuser bypasses permission checks")
	}
	mfs := StartMemFS(t, seedTree)
	defer mfs.Stop()

	p := filepath.Join(mfs.MountDir, "docs", "readme.txt")
	require.NoError(t, os.Chmod(p, 0o200))
	_, err := os.ReadFile(p)
	assert.True(t, errors.Is(err, os.ErrPermission), "got %v", err)

	require.NoError(t, os.Chmod(p, 0o600))
	_, err = os.ReadFile(p)
	assert.NoError(t, err)
}

// MemFSInstance is a running memfs process serving a mount
type MemFSInstance struct {
	cmd      *exec.Cmd
	MountDir string
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
	cleanup  func()
}

// StartMemFS starts a memfs process seeded with the given YAML tree
func StartMemFS(t *testing.T, tree string) *MemFSInstance {
	testID := strings.ReplaceAll(t.Name(), "/", "_")
	mountDir := filepath.Join(baseDir, fmt.Sprintf("mount-%s", testID))
	nodesFile := filepath.Join(baseDir, fmt.Sprintf("nodes-%s.yaml", testID))

	if err := os.MkdirAll(mountDir, 0o755); err != nil {
		t.Fatalf("Failed to create mount dir: %v", err)
	}
	if err := os.WriteFile(nodesFile, []byte(tree), 0o644); err != nil {
		t.Fatalf("Failed to write nodes file: %v", err)
	}

	cmd := exec.Command(memfsBin, "--nodes", nodesFile, "-v", "4", mountDir)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start MemFS: %v", err)
	}

	instance := &MemFSInstance{
		cmd:      cmd,
		MountDir: mountDir,
		stdout:   &stdout,
		stderr:   &stderr,
		cleanup: func() {
			_ = os.RemoveAll(mountDir) // Best effort cleanup
			_ = os.Remove(nodesFile)
		},
	}

	if err := instance.WaitForMount(15 * time.Second); err != nil {
		instance.Stop()
		_, logs := instance.GetLogs()
		t.Fatalf("MemFS mount failed: %v\n%s", err, logs)
	}

	return instance
}

// Stop gracefully stops the MemFS instance
func (m *MemFSInstance) Stop() {
	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Signal(os.Interrupt) // Process may have already exited

		done := make(chan error, 1)
		go func() {
			done <- m.cmd.Wait()
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = m.cmd.Process.Kill()
			<-done
			_ = exec.Command("fusermount", "-u", m.MountDir).Run()
		}
	}

	if m.cleanup != nil {
		m.cleanup()
	}
}

// WaitForMount waits until the seeded tree is visible through the mount
func (m *MemFSInstance) WaitForMount(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if files, err := os.ReadDir(m.MountDir); err == nil && len(files) > 0 {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("timeout waiting for MemFS mount to be ready")
}

// GetLogs returns the stdout and stderr from the MemFS process
func (m *MemFSInstance) GetLogs() (stdout, stderr string) {
	return m.stdout.String(), m.stderr.String()
}
