package metadata

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// ContentRef returns the content address of data: the hex BLAKE3-256 digest.
// It is used both as the block key and as the base digest of diffs.
func ContentRef(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
