package corpus

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a hex BLAKE2b-256 digest over the IDs, texts and labels
// of records, in order. Runs over the same corpus prefix share a fingerprint.
func Fingerprint(records []Record) string {
	h, _ := blake2b.New256(nil)
	var buf [8]byte
	for _, r := range records {
		binary.LittleEndian.PutUint64(buf[:], uint64(r.ID))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(len(r.Text)))
		h.Write(buf[:])
		h.Write([]byte(r.Text))
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(r.Label)))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
