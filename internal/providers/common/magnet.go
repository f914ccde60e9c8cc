package common

import (
	"encoding/base32"
	"encoding/hex"
	"net/url"
	"strings"
)

// NormalizeInfoHash returns the lowercase 40 character hex form of a v1
// infohash. Base32 hashes are converted; anything else yields "".
func NormalizeInfoHash(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(strings.ToLower(value), "urn:btih:")
	switch len(value) {
	case 40:
		if _, err := hex.DecodeString(value); err != nil {
			return ""
		}
		return value
	case 32:
		decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(value))
		if err != nil {
			return ""
		}
		return hex.EncodeToString(decoded)
	default:
		return ""
	}
}

func BuildMagnet(infoHash, name string, trackers ...string) string {
	hash := NormalizeInfoHash(infoHash)
	if hash == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("magnet:?xt=urn:btih:")
	builder.WriteString(hash)
	if strings.TrimSpace(name) != "" {
		builder.WriteString("&dn=")
		builder.WriteString(url.QueryEscape(strings.TrimSpace(name)))
	}
	for _, tracker := range trackers {
		value := strings.TrimSpace(tracker)
		if value == "" {
			continue
		}
		builder.WriteString("&tr=")
		builder.WriteString(url.QueryEscape(value))
	}
	return builder.String()
}
