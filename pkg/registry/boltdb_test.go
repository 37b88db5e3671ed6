package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/avery/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func fn(name, version string) *types.Function {
	return &types.Function{Name: name, Version: version}
}

func TestInsertAndGetExact(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Insert(fn("foo", "1.0.0"))
	require.NoError(t, err)

	got, err := s.Get("foo", "=1.0.0")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	_, err = s.Get("bar", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetByID(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Insert(fn("foo", "1.0.0"))
	require.NoError(t, err)

	got, err := s.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, "foo", got.Name)

	_, err = s.GetByID("nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertDuplicateVersionFails(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Insert(fn("foo", "1.0.0"))
	require.NoError(t, err)

	_, err = s.Insert(fn("foo", "1.0.0"))
	var verErr *VersionExistsError
	require.ErrorAs(t, err, &verErr)
	assert.Equal(t, "foo", verErr.Name)
}

func TestConcurrentInsertExactlyOneWins(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.Insert(fn("foo", "1.0.0"))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes)
}

func TestGetVersionRequirement(t *testing.T) {
	s := newTestStore(t)

	for _, v := range []string{"1.0.0", "1.1.0", "2.0.0-rc"} {
		_, err := s.Insert(fn("foo", v))
		require.NoError(t, err)
	}

	got, err := s.Get("foo", "^1")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", got.Version)
}

func TestListOrderingNameVersion(t *testing.T) {
	s := newTestStore(t)

	_, _ = s.Insert(fn("a", "1.0.0"))
	_, _ = s.Insert(fn("a", "2.0.0"))
	_, _ = s.Insert(fn("b", "1.0.0"))

	fns, err := s.List(types.Filters{}, types.Ordering{Key: types.OrderByNameVersion})
	require.NoError(t, err)
	require.Len(t, fns, 3)
	assert.Equal(t, "a", fns[0].Name)
	assert.Equal(t, "2.0.0", fns[0].Version)
	assert.Equal(t, "a", fns[1].Name)
	assert.Equal(t, "1.0.0", fns[1].Version)
	assert.Equal(t, "b", fns[2].Name)
}

func TestInsertUnknownAttachmentFails(t *testing.T) {
	s := newTestStore(t)

	f := fn("foo", "1.0.0")
	f.CodeID = "nonexistent"
	_, err := s.Insert(f)

	var attErr *UnknownAttachmentError
	require.ErrorAs(t, err, &attErr)
	assert.Equal(t, "nonexistent", attErr.ID)
}

func TestAttachmentBackReferencesAreRegistryMaintained(t *testing.T) {
	s := newTestStore(t)

	attID, err := s.InsertAttachment(&types.Attachment{Name: "code.wasm", SHA256: "abc"})
	require.NoError(t, err)

	f := fn("foo", "1.0.0")
	f.CodeID = attID
	fnID, err := s.Insert(f)
	require.NoError(t, err)

	att, err := s.GetAttachment(attID)
	require.NoError(t, err)
	assert.Equal(t, []string{fnID}, att.FunctionIDs)
}
