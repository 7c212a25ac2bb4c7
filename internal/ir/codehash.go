package ir

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// CodeHashSize is the width of the raw identifier the registry expects.
const CodeHashSize = 32

// CodeHash names a code image by the SHA2-256 digest of its bytes.
// The zero value names no image.
type CodeHash [CodeHashSize]byte

// ErrInvalidCodeHash is returned when input cannot be normalized to a CodeHash.
var ErrInvalidCodeHash = errors.New("invalid code hash")

// HashImage computes the CodeHash of a code image's source bytes.
func HashImage(src []byte) CodeHash {
	sum, err := multihash.Sum(src, multihash.SHA2_256, -1)
	if err != nil {
		// Sum only fails for unknown codes or bad lengths; SHA2_256 with
		// default length is neither.
		panic(fmt.Sprintf("HashImage: %v", err))
	}
	h, err := codeHashFromMultihash(sum)
	if err != nil {
		panic(fmt.Sprintf("HashImage: %v", err))
	}
	return h
}

// CodeHashFromRaw validates and copies a raw identifier.
func CodeHashFromRaw(raw []byte) (CodeHash, error) {
	var h CodeHash
	if len(raw) != CodeHashSize {
		return h, fmt.Errorf("%w: raw identifier is %d bytes, want %d", ErrInvalidCodeHash, len(raw), CodeHashSize)
	}
	copy(h[:], raw)
	return h, nil
}

// ParseCodeHash accepts "0x"-prefixed hex, bare hex, or a CID whose
// multihash is a 32-byte sha2-256 digest.
func ParseCodeHash(s string) (CodeHash, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CodeHash{}, fmt.Errorf("%w: empty", ErrInvalidCodeHash)
	}

	hexPart := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(hexPart) == 2*CodeHashSize {
		if raw, err := hex.DecodeString(hexPart); err == nil {
			return CodeHashFromRaw(raw)
		}
	}
	if hexPart != s {
		return CodeHash{}, fmt.Errorf("%w: %q is not %d bytes of hex", ErrInvalidCodeHash, s, CodeHashSize)
	}

	c, err := cid.Decode(s)
	if err != nil {
		return CodeHash{}, fmt.Errorf("%w: %q is neither hex nor a CID", ErrInvalidCodeHash, s)
	}
	return codeHashFromMultihash(c.Hash())
}

// MustParseCodeHash is like ParseCodeHash but panics on error.
// Use only in tests or for compile-time constants.
func MustParseCodeHash(s string) CodeHash {
	h, err := ParseCodeHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

func codeHashFromMultihash(mh multihash.Multihash) (CodeHash, error) {
	dec, err := multihash.Decode(mh)
	if err != nil {
		return CodeHash{}, fmt.Errorf("%w: %v", ErrInvalidCodeHash, err)
	}
	if dec.Code != multihash.SHA2_256 {
		return CodeHash{}, fmt.Errorf("%w: multihash %s, want sha2-256", ErrInvalidCodeHash, dec.Name)
	}
	return CodeHashFromRaw(dec.Digest)
}

// Raw returns the raw identifier form handed to the registry.
func (h CodeHash) Raw() []byte {
	out := make([]byte, CodeHashSize)
	copy(out, h[:])
	return out
}

// IsZero reports whether h is the zero hash.
func (h CodeHash) IsZero() bool {
	return h == CodeHash{}
}

// String returns the "0x"-prefixed lowercase hex form.
func (h CodeHash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// Short returns the first four bytes in hex, for logs.
func (h CodeHash) Short() string {
	return hex.EncodeToString(h[:4])
}

// CID returns the CIDv1 (raw codec, sha2-256) naming the same image.
func (h CodeHash) CID() cid.Cid {
	mh, err := multihash.Encode(h[:], multihash.SHA2_256)
	if err != nil {
		panic(fmt.Sprintf("CodeHash.CID: %v", err))
	}
	return cid.NewCidV1(cid.Raw, mh)
}

// MarshalText implements encoding.TextMarshaler.
func (h CodeHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *CodeHash) UnmarshalText(text []byte) error {
	parsed, err := ParseCodeHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
