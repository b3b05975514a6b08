package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// Short returns the first 12 hex digits.
func (h Hash) Short() string {
	if len(h) < 12 {
		return string(h)
	}
	return string(h[:12])
}

// CohortHash fingerprints the row membership and column list of a cohort.
type CohortHash Hash

func (h CohortHash) String() string { return Hash(h).String() }
func (h CohortHash) Short() string  { return Hash(h).Short() }

// ComputeCohortHash hashes row indices and column names. Row order does not
// matter; column order does.
func ComputeCohortHash(rows []int, columns []string) CohortHash {
	sorted := append([]int(nil), rows...)
	sort.Ints(sorted)

	data := make([]byte, 0, 8*len(sorted)+16*len(columns))
	var buf [8]byte
	for _, r := range sorted {
		binary.LittleEndian.PutUint64(buf[:], uint64(r))
		data = append(data, buf[:]...)
	}
	for _, c := range columns {
		data = append(data, c...)
		data = append(data, 0)
	}
	return CohortHash(NewHash(data))
}
