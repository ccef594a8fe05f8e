package domain_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tangram.example.dev/tangram/internal/core/domain"
)

func countingFetch(store map[domain.Identifier][]byte, calls *int) domain.BlobFetch {
	return func(id domain.Identifier) ([]byte, error) {
		*calls++
		data, ok := store[id]
		if !ok {
			return nil, domain.ErrNotFound
		}
		return data, nil
	}
}

func buildBlobStore(t *testing.T, data []byte) (map[domain.Identifier][]byte, domain.Identifier) {
	t.Helper()
	nodes, root, err := domain.BuildBlobTree(data)
	require.NoError(t, err)
	store := make(map[domain.Identifier][]byte, len(nodes))
	for _, n := range nodes {
		store[n.ID] = n.Data
	}
	return store, root
}

// readExactly reads exactly n bytes from r via repeated Read calls, failing
// the test if a Read returns no bytes and an error before n is reached.
func readExactly(t *testing.T, r io.Reader, n int64) []byte {
	t.Helper()
	buf := make([]byte, n)
	var got int64
	for got < n {
		nr, err := r.Read(buf[got:])
		got += int64(nr)
		if nr == 0 && err != nil {
			require.FailNowf(t, "read failed before reaching n bytes", "got=%d want=%d err=%v", got, n, err)
		}
	}
	return buf
}

func TestBlobReader_SingleLeafReadsWholeContent(t *testing.T) {
	content := []byte("hello, tangram")
	store, root := buildBlobStore(t, content)

	var calls int
	reader, err := domain.NewBlobReader(countingFetch(store, &calls), root)
	require.NoError(t, err)

	assert.Equal(t, int64(len(content)), reader.Size())
	assert.Equal(t, 1, calls, "constructing the reader should only fetch the root")

	got := readExactly(t, reader, int64(len(content)))
	assert.Equal(t, content, got)
	assert.Equal(t, 1, calls, "reading a single-leaf blob should not trigger any further fetch")
}

func TestBlobReader_MultiLeafDoesNotFetchEveryLeafUpFront(t *testing.T) {
	content := bytes.Repeat([]byte{'a'}, domain.MaxLeafSize*3+17)
	store, root := buildBlobStore(t, content)

	var calls int
	reader, err := domain.NewBlobReader(countingFetch(store, &calls), root)
	require.NoError(t, err)

	assert.Equal(t, int64(len(content)), reader.Size())
	assert.Equal(t, 1, calls, "constructing the reader should only fetch the root branch, not its leaves")

	buf := make([]byte, 8)
	n, err := reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, 2, calls, "reading the first bytes should fetch only the one leaf that contains them")
}

func TestBlobReader_SeekAcrossLeavesFetchesOnlyTargetLeaf(t *testing.T) {
	content := bytes.Repeat([]byte{'b'}, domain.MaxLeafSize*2)
	store, root := buildBlobStore(t, content)

	var calls int
	reader, err := domain.NewBlobReader(countingFetch(store, &calls), root)
	require.NoError(t, err)
	baseline := calls

	_, err = reader.Seek(int64(domain.MaxLeafSize)+5, io.SeekStart)
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, baseline+1, calls, "seeking into the second leaf should fetch only that leaf")

	remaining := int64(domain.MaxLeafSize) - 5 - 4
	got := readExactly(t, reader, remaining)
	assert.Equal(t, content[int(domain.MaxLeafSize)+5+4:], got)
	assert.Equal(t, baseline+1, calls, "reading on within the same leaf should not re-fetch it")
}

func TestBlobReader_EmptyBlob(t *testing.T) {
	store, root := buildBlobStore(t, nil)

	var calls int
	reader, err := domain.NewBlobReader(countingFetch(store, &calls), root)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reader.Size())

	_, err = reader.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}
