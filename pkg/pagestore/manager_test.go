package pagestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitAllocatesNothingUntilAsked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	m, err := Init(path)
	require.NoError(t, err)
	defer m.Close()

	require.EqualValues(t, 0, m.NextPageID())
}

func TestAllocateReadWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	m, err := Init(path)
	require.NoError(t, err)
	defer m.Close()

	id := m.AllocatePage()
	require.EqualValues(t, 0, id)
	require.EqualValues(t, 1, m.NextPageID())

	p := m.ReadPage(id)
	require.EqualValues(t, id, p.ID())

	p.Insert(99, nil)
	m.WritePage(p)

	reread := m.ReadPage(id)
	require.Equal(t, []byte{99}, reread.Tuples())
}

func TestAllocatePageMonotonic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	m, err := Init(path)
	require.NoError(t, err)
	defer m.Close()

	var ids []int
	for i := 0; i < 5; i++ {
		ids = append(ids, int(m.AllocatePage()))
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, ids)
}

func TestLoadReopensExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	m, err := Init(path)
	require.NoError(t, err)
	m.AllocatePage()
	m.AllocatePage()
	require.NoError(t, m.Close())

	reopened, err := Load(path)
	require.NoError(t, err)
	defer reopened.Close()

	require.EqualValues(t, 2, reopened.NextPageID())
}
