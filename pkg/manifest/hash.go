package manifest

import (
	"encoding/hex"
	"io"
	"os"

	sha256simd "github.com/minio/sha256-simd"
)

// hashFile returns the hex-encoded SHA-256 of the file at path, using
// the same checksum implementation the executor verifies attachments
// against on fetch (spec §4.9, §7 checksum mismatch).
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sum := sha256simd.New()
	if _, err := io.Copy(sum, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}
