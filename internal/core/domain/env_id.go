package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// GenerateEnvID derives a deterministic, order-independent identifier for a
// set of tool specifiers, used to key the nix environment cache.
func GenerateEnvID(tools map[string]string) string {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(tools[name]))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}
