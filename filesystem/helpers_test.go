package filesystem

import (
	"testing"
	"time"

	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/internal/mocks"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/stretchr/testify/require"
)

const (
	testUID uint32 = 1000
	testGID uint32 = 1000
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func createTestConfig() *config.Config {
	return config.NewConfig(&config.ConfigOverride{
		UID: util.Pointer(testUID),
		GID: util.Pointer(testGID),
	})
}

// createTestContainer returns a container owned by testUID/testGID whose
// clock ticks one second per reading
func createTestContainer(t *testing.T) *Container {
	t.Helper()
	return NewContainerWithClock(createTestConfig(), mocks.NewSteppingClock(testEpoch, time.Second))
}

// createFileWithContent creates a file at p holding data
func createFileWithContent(t *testing.T, c *Container, p string, data []byte) *Node {
	t.Helper()
	node, err := c.CreateFile(p)
	require.NoError(t, err)
	node.SetContent(data)
	return node
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, IsKind(err, kind), "expected %s, got %v", kind, err)
}
