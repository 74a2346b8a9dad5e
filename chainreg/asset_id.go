package chainreg

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AssetIDHexLen is the length of a rendered asset id: "0x" + 32 bytes of hex.
const AssetIDHexLen = 2 + 2*common.HashLength

// ErrInvalidAssetID wraps every ParseAssetID rejection so callers can map a
// malformed client-supplied id to a request error rather than a server one.
var ErrInvalidAssetID = errors.New("invalid asset id")

// AssetIDForSlug derives the on-chain asset identifier for a project slug.
// Deterministic Keccak-256 over the slug bytes; the same slug always maps to
// the same id. The reverse direction is a database lookup, never a hash
// inversion. Empty slugs are a caller contract violation.
func AssetIDForSlug(slug string) common.Hash {
	if slug == "" {
		panic("chainreg: empty slug")
	}
	return crypto.Keccak256Hash([]byte(slug))
}

// ParseAssetID validates and decodes a client-supplied asset id. It accepts
// only the canonical form: 0x prefix followed by exactly 64 hex characters.
func ParseAssetID(s string) (common.Hash, error) {
	if len(s) != AssetIDHexLen {
		return common.Hash{}, fmt.Errorf("%w: must be %d characters, got %d", ErrInvalidAssetID, AssetIDHexLen, len(s))
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return common.Hash{}, fmt.Errorf("%w: must start with 0x", ErrInvalidAssetID)
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: not valid hex", ErrInvalidAssetID)
	}
	return common.BytesToHash(raw), nil
}

// LooksLikeAssetID reports whether a lookup key should be treated as an asset
// id rather than a slug. Callers that accept either form route on this.
func LooksLikeAssetID(s string) bool {
	return len(s) == AssetIDHexLen && (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"))
}
