package runtime

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// APIItem identifies one versioned runtime API.
type APIItem struct {
	ID      string
	Version uint32
}

// Version describes a runtime build. SpecName and SpecVersion identify the
// protocol; ImplName and ImplVersion identify the build that implements it.
// Two builds with equal spec identity are interchangeable even when their
// implementation versions differ.
type Version struct {
	SpecName    string
	SpecVersion uint32
	ImplName    string
	ImplVersion uint32
	APIs        []APIItem
}

// CompatibleWith reports whether a native build carrying this version may be
// used in place of the runtime declaring other. Only the spec identity is
// compared: the native binary is a faster equivalent, not a different
// protocol.
func (v *Version) CompatibleWith(other *Version) bool {
	if v == nil || other == nil {
		return false
	}
	return v.SpecName == other.SpecName && v.SpecVersion == other.SpecVersion
}

// HasAPI reports whether the runtime exposes the given API at exactly the
// given version.
func (v *Version) HasAPI(id string, version uint32) bool {
	for _, api := range v.APIs {
		if api.ID == id && api.Version == version {
			return true
		}
	}
	return false
}

// Encode returns the canonical RLP encoding of the version descriptor.
func (v *Version) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(v)
}

// DecodeVersion decodes an RLP encoded version descriptor.
func DecodeVersion(data []byte) (*Version, error) {
	v := new(Version)
	if err := rlp.DecodeBytes(data, v); err != nil {
		return nil, fmt.Errorf("decode runtime version: %w", err)
	}
	return v, nil
}

func (v *Version) String() string {
	return fmt.Sprintf("%s/%d (%s/%d)", v.SpecName, v.SpecVersion, v.ImplName, v.ImplVersion)
}
