package util

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// Fingerprint returns the CRC32 of a payload as eight hex digits.
func Fingerprint(data []byte) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data))
}

// CalculateFileFingerprint returns the CRC32 of a file's full contents along
// with its size. The watcher uses it to skip re-analysis of unchanged exports.
func CalculateFileFingerprint(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	hasher := crc32.NewIEEE()
	n, err := io.Copy(hasher, file)
	if err != nil {
		return "", 0, err
	}
	return fmt.Sprintf("%08x", hasher.Sum32()), n, nil
}
