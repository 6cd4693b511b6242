package persist

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrNotFound         = errors.New("snapshot not found")
	ErrChecksumMismatch = errors.New("snapshot checksum mismatch")
	ErrInvalidName      = errors.New("invalid snapshot name")
)

// SnapshotInfo describes a stored world snapshot.
type SnapshotInfo struct {
	Name     string
	Version  uint8 // snapshot format version, the first byte of the data
	Size     int
	Checksum string // hex BLAKE2b-256
	SavedAt  time.Time
}

// Checksum returns the BLAKE2b-256 digest of data.
func Checksum(data []byte) [blake2b.Size256]byte {
	return blake2b.Sum256(data)
}

// ChecksumHex is Checksum as lower-case hex.
func ChecksumHex(data []byte) string {
	sum := Checksum(data)
	return hex.EncodeToString(sum[:])
}

func info(name string, data []byte, savedAt time.Time) SnapshotInfo {
	si := SnapshotInfo{Name: name, Size: len(data), Checksum: ChecksumHex(data), SavedAt: savedAt}
	if len(data) > 0 {
		si.Version = data[0]
	}
	return si
}

// validateName accepts names usable as both a primary key and a file name.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\:`) || len(name) > 128 {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
