package splitter

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, size int64) (string, []byte) {
	t.Helper()

	data := make([]byte, size)
	_, err := rand.New(rand.NewSource(size)).Read(data)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path, data
}

func TestSplitSingleChunkPassthrough(t *testing.T) {
	path, _ := writeTempFile(t, 1000)

	parts, err := Split(path, 4096)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	require.Equal(t, path, parts[0].Path)
	require.Equal(t, int64(1000), parts[0].Size)
}

func TestSplitConcatReproducesSource(t *testing.T) {
	cases := []struct {
		name  string
		size  int64
		chunk int64
		parts int
	}{
		{"uneven", 2500, 1900, 2},
		{"exact_multiple", 4000, 1000, 4},
		{"one_over", 1001, 1000, 2},
		{"chunk_larger_after_copy", 5000, 1024, 5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path, data := writeTempFile(t, tc.size)

			parts, err := Split(path, tc.chunk)
			require.NoError(t, err)
			require.Len(t, parts, tc.parts)

			var joined bytes.Buffer
			for i, p := range parts {
				require.Equal(t, i, p.Seq)
				if i < len(parts)-1 {
					require.Equal(t, tc.chunk, p.Size)
				}
				chunk, err := os.ReadFile(p.Path)
				require.NoError(t, err)
				require.Equal(t, p.Size, int64(len(chunk)))
				joined.Write(chunk)
			}

			require.True(t, bytes.Equal(data, joined.Bytes()))

			want := tc.size % tc.chunk
			if want == 0 {
				want = tc.chunk
			}
			require.Equal(t, want, parts[len(parts)-1].Size)
		})
	}
}

func TestSplitOversizedFileProducesTwoParts(t *testing.T) {
	// Same shape as the 2.5 GiB item on a non-premium session: size between
	// one and two chunks.
	path, _ := writeTempFile(t, 2500)

	parts, err := Split(path, 1900)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	require.Equal(t, int64(1900), parts[0].Size)
	require.Equal(t, int64(600), parts[1].Size)
	require.Equal(t, path+".part000", parts[0].Path)
	require.Equal(t, path+".part001", parts[1].Path)
}

func TestSplitRejectsBadChunkSize(t *testing.T) {
	path, _ := writeTempFile(t, 10)

	_, err := Split(path, 0)
	require.Error(t, err)
}

func TestSplitMissingFile(t *testing.T) {
	_, err := Split(filepath.Join(t.TempDir(), "absent.bin"), 100)
	require.Error(t, err)
}
