package featstore

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/featbench/internal/encode"
)

func sampleBatch() encode.Batch {
	b := encode.NewBatch(3, 4)
	b.Row(0)[0] = 1
	b.Row(1)[2] = 1
	b.Row(1)[3] = 1
	b.Row(2)[1] = 0.5
	return b
}

func TestWriteLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleBatch()))

	data := buf.Bytes()
	require.Len(t, data, HeaderSize+3*4*4)
	assert.Equal(t, uint64(3), binary.LittleEndian.Uint64(data[0:8]))
	assert.Equal(t, uint64(4), binary.LittleEndian.Uint64(data[8:16]))
	// Row 1, column 2 is the 7th float.
	v := math.Float32frombits(binary.LittleEndian.Uint32(data[HeaderSize+6*4:]))
	assert.Equal(t, float32(1), v)
}

func TestRoundTrip(t *testing.T) {
	want := sampleBatch()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, want))

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
	assert.Equal(t, want.Count, got.Count)
	assert.Equal(t, want.Dim, got.Dim)
}

func TestEmptyBatchWritesZeroDim(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, encode.Batch{Count: 0, Dim: 5}))
	assert.Equal(t, make([]byte, HeaderSize), buf.Bytes())

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Count)
	assert.Equal(t, 0, got.Dim)
}

func TestWriteRejectsInconsistentBatch(t *testing.T) {
	err := Write(&bytes.Buffer{}, encode.Batch{Count: 2, Dim: 2, Data: make([]float32, 3)})
	assert.Error(t, err)
}

func TestReadErrors(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte{1, 2, 3}))
	assert.Error(t, err)

	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[8:], 7)
	_, err = Read(bytes.NewReader(hdr[:]))
	assert.ErrorIs(t, err, ErrBadHeader)

	binary.LittleEndian.PutUint64(hdr[0:], math.MaxUint64)
	_, err = Read(bytes.NewReader(hdr[:]))
	assert.ErrorIs(t, err, ErrBadHeader)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleBatch()))
	truncated := buf.Bytes()[:buf.Len()-2]
	_, err = Read(bytes.NewReader(truncated))
	assert.Error(t, err)
}

func TestSaveOpenInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings", FileName(3, ""))
	require.NoError(t, Save(path, sampleBatch()))

	got, err := Open(path)
	require.NoError(t, err)
	assert.True(t, sampleBatch().Equal(got))

	h, size, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, Header{Count: 3, Dim: 4}, h)
	assert.Equal(t, int64(HeaderSize+48), size)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, os.Truncate(path, HeaderSize+8))
	_, _, err = Inspect(path)
	assert.ErrorIs(t, err, ErrBadHeader)
}

func TestOpenRejectsOversizedHeader(t *testing.T) {
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[0:8], 1<<16)
	binary.LittleEndian.PutUint64(hdr[8:16], 1<<15)
	data := append(hdr[:], 0, 0, 0, 0)

	path := filepath.Join(t.TempDir(), "corrupt.bin")
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrBadHeader)

	_, err = Read(bytes.NewReader(data))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBadHeader)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.bin"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "train_onehot_100.bin", FileName(100, ""))
	assert.Equal(t, "train_onehot_100.bin", FileName(100, "sequential"))
	assert.Equal(t, "train_onehot_100_parallel.bin", FileName(100, "parallel"))
}
