package hubs

import (
	"encoding/json"
	"strings"
)

// checksumEntry is one member of a catalog Checksum list.
type checksumEntry struct {
	Value     string `json:"Value"`
	Algorithm string `json:"Algorithm"`
}

// usableMD5 extracts an MD5 digest from the checksum field of a catalog
// response. Catalogs present the checksum either as a list of
// {Value, Algorithm} objects or as a multihash-prefixed hex string (prefix
// d5 for MD5). Only MD5 is honoured; anything else returns "" so the caller
// can warn and skip verification.
func usableMD5(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var entries []checksumEntry
	if err := json.Unmarshal(raw, &entries); err == nil {
		for _, entry := range entries {
			if strings.EqualFold(entry.Algorithm, "md5") {
				return strings.ToLower(entry.Value)
			}
		}
		return ""
	}

	// DHuS renders the checksum as a single {Algorithm, Value} object.
	var single checksumEntry
	if err := json.Unmarshal(raw, &single); err == nil && single.Value != "" {
		if strings.EqualFold(single.Algorithm, "md5") {
			return strings.ToLower(single.Value)
		}
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return md5FromMultihash(s)
	}
	return ""
}

// md5FromMultihash accepts a multihash-style hex string and returns the
// digest when the algorithm prefix identifies MD5 (0xd5), or the bare digest
// when the string is already a plain 32-char MD5 hex.
func md5FromMultihash(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) == 32 {
		return s
	}
	// multihash layout: <algorithm><length><digest>, hex encoded
	if strings.HasPrefix(s, "d5") && len(s) >= 4 {
		digest := s[4:]
		if len(digest) == 32 {
			return digest
		}
	}
	return ""
}
