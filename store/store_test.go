package store_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Laegel/votingdapp/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(filepath.Join(t.TempDir(), "votes.json"))
}

func TestReadAll_MissingFileIsEmptySet(t *testing.T) {
	s := newTestStore(t)

	votes, err := s.ReadAll()
	require.NoError(t, err)
	require.Empty(t, votes)
}

func TestReadAll_MalformedFileIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "votes.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := store.New(path).ReadAll()
	require.Error(t, err)
}

func TestAdd_IDsUniqueAndIncreasing(t *testing.T) {
	s := newTestStore(t)

	names := []string{"Rust", "Go", "Elixir", "OCaml"}
	for i, name := range names {
		v, err := s.Add(name)
		require.NoError(t, err)
		require.Equal(t, uint64(i), v.ID)
		require.Equal(t, name, v.Name)
		require.False(t, v.Public)
	}

	votes, err := s.ReadAll()
	require.NoError(t, err)
	require.Len(t, votes, len(names))
	seen := make(map[uint64]bool)
	var last uint64
	for i, v := range votes {
		require.False(t, seen[v.ID], "duplicate id %d", v.ID)
		seen[v.ID] = true
		if i > 0 {
			require.Greater(t, v.ID, last)
		}
		last = v.ID
	}
}

func TestAdd_NextIDIsMaxPlusOne(t *testing.T) {
	s := newTestStore(t)

	// Persisted sets are not required to be id-ordered; the next id must
	// still be max+1.
	require.NoError(t, s.WriteAll([]store.Vote{
		{ID: 7, Name: "Haskell", Public: true},
		{ID: 2, Name: "Lua", Public: false},
	}))

	v, err := s.Add("Julia")
	require.NoError(t, err)
	require.Equal(t, uint64(8), v.ID)
}

func TestWriteAll_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	in := []store.Vote{
		{ID: 0, Name: "A", Public: true},
		{ID: 1, Name: "B", Public: false},
		{ID: 2, Name: "C", Public: true},
	}
	require.NoError(t, s.WriteAll(in))

	out, err := s.ReadAll()
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestMarkPublic(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.WriteAll([]store.Vote{
		{ID: 0, Name: "A", Public: false},
		{ID: 1, Name: "B", Public: false},
	}))

	require.NoError(t, s.MarkPublic(1))

	votes, err := s.ReadAll()
	require.NoError(t, err)
	require.Equal(t, []store.Vote{
		{ID: 0, Name: "A", Public: false},
		{ID: 1, Name: "B", Public: true},
	}, votes)
}

func TestMarkPublic_UnknownIDIsNoOp(t *testing.T) {
	s := newTestStore(t)

	in := []store.Vote{{ID: 0, Name: "A", Public: false}}
	require.NoError(t, s.WriteAll(in))

	require.NoError(t, s.MarkPublic(42))

	out, err := s.ReadAll()
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestFilterPublic_PreservesOrder(t *testing.T) {
	votes := []store.Vote{
		{ID: 0, Name: "A", Public: true},
		{ID: 1, Name: "B", Public: false},
		{ID: 2, Name: "C", Public: true},
	}

	require.Equal(t, []store.Vote{
		{ID: 0, Name: "A", Public: true},
		{ID: 2, Name: "C", Public: true},
	}, store.FilterPublic(votes))
}

func TestPublishRoundTrip(t *testing.T) {
	s := newTestStore(t)

	v, err := s.Add("Rust")
	require.NoError(t, err)
	require.Equal(t, store.Vote{ID: 0, Name: "Rust", Public: false}, v)

	votes, err := s.ReadAll()
	require.NoError(t, err)
	require.Equal(t, []store.Vote{{ID: 0, Name: "Rust", Public: false}}, votes)

	require.NoError(t, s.MarkPublic(0))

	votes, err = s.ReadAll()
	require.NoError(t, err)
	require.Equal(t, []store.Vote{{ID: 0, Name: "Rust", Public: true}}, votes)

	public, err := s.PublicVotes()
	require.NoError(t, err)
	require.Equal(t, []store.Vote{{ID: 0, Name: "Rust", Public: true}}, public)
}

func TestConcurrentAdds_NoLostUpdates(t *testing.T) {
	s := newTestStore(t)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := s.Add("Go")
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	votes, err := s.ReadAll()
	require.NoError(t, err)
	require.Len(t, votes, n)

	seen := make(map[uint64]bool)
	for _, v := range votes {
		require.False(t, seen[v.ID], "duplicate id %d", v.ID)
		seen[v.ID] = true
	}
}
