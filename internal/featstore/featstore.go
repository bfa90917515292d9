// Package featstore persists feature-vector batches in a flat binary layout:
//
//	[count uint64][dim uint64][count*dim float32, row-major]
//
// All values are little-endian. dim is written as 0 when count is 0.
package featstore

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/matsen/featbench/internal/encode"
)

// HeaderSize is the byte length of the count/dim header.
const HeaderSize = 16

// MaxElements caps count*dim accepted when reading a header.
const MaxElements = 1 << 32

// ErrBadHeader is returned when a header is inconsistent or implausible.
var ErrBadHeader = errors.New("invalid feature file header")

// Header describes the shape of a stored batch.
type Header struct {
	Count uint64 `json:"count"`
	Dim   uint64 `json:"dim"`
}

// PayloadSize returns the number of data bytes following the header.
func (h Header) PayloadSize() uint64 {
	return h.Count * h.Dim * 4
}

func (h Header) validate() error {
	if h.Count == 0 && h.Dim != 0 {
		return fmt.Errorf("%w: dim %d with zero count", ErrBadHeader, h.Dim)
	}
	if h.Dim != 0 && h.Count > MaxElements/h.Dim {
		return fmt.Errorf("%w: %d x %d is too large", ErrBadHeader, h.Count, h.Dim)
	}
	return nil
}

// Write serializes b to w.
func Write(w io.Writer, b encode.Batch) error {
	h := Header{Count: uint64(b.Count), Dim: uint64(b.Dim)}
	if b.Count == 0 {
		h.Dim = 0
	}
	if len(b.Data) != b.Count*b.Dim {
		return fmt.Errorf("batch data has %d values, want %d", len(b.Data), b.Count*b.Dim)
	}

	bw := bufio.NewWriterSize(w, 64*1024)
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[0:8], h.Count)
	binary.LittleEndian.PutUint64(hdr[8:16], h.Dim)
	if _, err := bw.Write(hdr[:]); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	var buf [4]byte
	for _, v := range b.Data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		if _, err := bw.Write(buf[:]); err != nil {
			return fmt.Errorf("writing data: %w", err)
		}
	}
	return bw.Flush()
}

// ReadHeader reads only the header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Header{}, fmt.Errorf("reading header: %w", err)
	}
	h := Header{
		Count: binary.LittleEndian.Uint64(hdr[0:8]),
		Dim:   binary.LittleEndian.Uint64(hdr[8:16]),
	}
	if err := h.validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// Read deserializes a batch written by Write. Storage grows with the values
// actually read, so a header claiming more data than r holds fails without
// allocating the full batch.
func Read(r io.Reader) (encode.Batch, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	h, err := ReadHeader(br)
	if err != nil {
		return encode.Batch{}, err
	}
	return readPayload(br, h)
}

// readChunk is the initial capacity, in values, of a batch being read.
const readChunk = 1 << 20

func readPayload(br *bufio.Reader, h Header) (encode.Batch, error) {
	n := int(h.Count * h.Dim)
	data := make([]float32, 0, min(n, readChunk))
	var buf [4]byte
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return encode.Batch{}, fmt.Errorf("reading value %d of %d: %w", i, n, err)
		}
		data = append(data, math.Float32frombits(binary.LittleEndian.Uint32(buf[:])))
	}
	return encode.Batch{Count: int(h.Count), Dim: int(h.Dim), Data: data}, nil
}

// Save writes b to path, creating parent directories. The file is written to
// a temp path first and renamed into place.
func Save(path string, b encode.Batch) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if err := Write(f, b); err != nil {
		f.Close()
		os.Remove(tempPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Open reads the batch stored at path. The header is checked against the
// file size before any values are read.
func Open(path string) (encode.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return encode.Batch{}, fmt.Errorf("opening feature file: %w", err)
	}
	defer f.Close()

	h, _, err := checkedHeader(f)
	if err != nil {
		return encode.Batch{}, err
	}
	return readPayload(bufio.NewReaderSize(f, 64*1024), h)
}

// Inspect reads the header at path and checks it against the file size.
func Inspect(path string) (Header, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, 0, fmt.Errorf("opening feature file: %w", err)
	}
	defer f.Close()
	return checkedHeader(f)
}

func checkedHeader(f *os.File) (Header, int64, error) {
	info, err := f.Stat()
	if err != nil {
		return Header{}, 0, fmt.Errorf("stat feature file: %w", err)
	}
	h, err := ReadHeader(f)
	if err != nil {
		return Header{}, info.Size(), err
	}
	if want := int64(HeaderSize) + int64(h.PayloadSize()); info.Size() != want {
		return h, info.Size(), fmt.Errorf("%w: file is %d bytes, header implies %d", ErrBadHeader, info.Size(), want)
	}
	return h, info.Size(), nil
}

// FileName returns the conventional file name for a batch of n records.
func FileName(n int, strategy string) string {
	if strategy == "" || strategy == "sequential" {
		return fmt.Sprintf("train_onehot_%d.bin", n)
	}
	return fmt.Sprintf("train_onehot_%d_%s.bin", n, strategy)
}
