package zamunda

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/IncSW/go-bencode"

	"github.com/murrou-cell/stremio-zamunda/internal/domain"
)

// torrentMeta is what a stream needs from a .torrent file.
type torrentMeta struct {
	InfoHash string
	Files    []domain.TorrentFile
}

func parseTorrent(payload []byte) (torrentMeta, error) {
	infoHash, err := extractInfoHash(payload)
	if err != nil {
		return torrentMeta{}, err
	}

	decoded, err := bencode.Unmarshal(payload)
	if err != nil {
		return torrentMeta{}, fmt.Errorf("decode torrent: %w", err)
	}
	root, ok := decoded.(map[string]interface{})
	if !ok {
		return torrentMeta{}, errors.New("invalid torrent: expected top-level dict")
	}
	info, ok := root["info"].(map[string]interface{})
	if !ok {
		return torrentMeta{}, errors.New("invalid torrent: missing info dictionary")
	}
	return torrentMeta{InfoHash: infoHash, Files: torrentFiles(info)}, nil
}

// torrentFiles lists files in torrent order, which is the index space the
// client uses for fileIdx.
func torrentFiles(info map[string]interface{}) []domain.TorrentFile {
	name := bencodeString(info["name"])
	entries, ok := info["files"].([]interface{})
	if !ok {
		if name == "" {
			return nil
		}
		return []domain.TorrentFile{{Name: name, SizeBytes: bencodeInt(info["length"])}}
	}

	files := make([]domain.TorrentFile, 0, len(entries))
	for _, entry := range entries {
		file, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		parts := make([]string, 0, 4)
		if segments, ok := file["path"].([]interface{}); ok {
			for _, segment := range segments {
				if value := bencodeString(segment); value != "" {
					parts = append(parts, value)
				}
			}
		}
		files = append(files, domain.TorrentFile{
			Name:      strings.Join(parts, "/"),
			SizeBytes: bencodeInt(file["length"]),
		})
	}
	return files
}

func bencodeString(value interface{}) string {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return ""
	}
}

func bencodeInt(value interface{}) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

// extractInfoHash computes the infohash as SHA-1 of the raw bencoded info
// dict, so re-encoding quirks can never change it.
func extractInfoHash(payload []byte) (string, error) {
	start, end, ok, err := findTopLevelInfoValue(payload)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("missing info dictionary")
	}
	sum := sha1.Sum(payload[start:end])
	return hex.EncodeToString(sum[:]), nil
}

func findTopLevelInfoValue(payload []byte) (start int, end int, ok bool, err error) {
	if len(payload) == 0 || payload[0] != 'd' {
		return 0, 0, false, errors.New("invalid torrent: expected top-level dict")
	}
	i := 1
	for {
		if i >= len(payload) {
			return 0, 0, false, errors.New("invalid torrent: unexpected EOF")
		}
		if payload[i] == 'e' {
			break
		}
		key, next, parseErr := readString(payload, i)
		if parseErr != nil {
			return 0, 0, false, parseErr
		}
		valueEnd, skipErr := skipValue(payload, next)
		if skipErr != nil {
			return 0, 0, false, skipErr
		}
		if !ok && string(key) == "info" {
			start, end, ok = next, valueEnd, true
		}
		i = valueEnd
	}
	return start, end, ok, nil
}

func readString(payload []byte, i int) ([]byte, int, error) {
	n := 0
	j := i
	for {
		if j >= len(payload) {
			return nil, 0, errors.New("invalid bencode: unexpected EOF")
		}
		b := payload[j]
		if b == ':' {
			break
		}
		if b < '0' || b > '9' {
			return nil, 0, errors.New("invalid bencode: expected string length")
		}
		n = n*10 + int(b-'0')
		j++
	}
	j++
	if n < 0 || j+n > len(payload) {
		return nil, 0, errors.New("invalid bencode: string out of bounds")
	}
	return payload[j : j+n], j + n, nil
}

func skipValue(payload []byte, i int) (int, error) {
	if i >= len(payload) {
		return 0, errors.New("invalid bencode: unexpected EOF")
	}
	switch payload[i] {
	case 'i':
		j := i + 1
		if j < len(payload) && payload[j] == '-' {
			j++
		}
		digits := 0
		for ; j < len(payload); j++ {
			if payload[j] == 'e' {
				if digits == 0 {
					return 0, errors.New("invalid bencode: empty int")
				}
				return j + 1, nil
			}
			if payload[j] < '0' || payload[j] > '9' {
				return 0, errors.New("invalid bencode: bad int")
			}
			digits++
		}
		return 0, errors.New("invalid bencode: unexpected EOF")
	case 'l', 'd':
		dict := payload[i] == 'd'
		j := i + 1
		for {
			if j >= len(payload) {
				return 0, errors.New("invalid bencode: unexpected EOF")
			}
			if payload[j] == 'e' {
				return j + 1, nil
			}
			if dict {
				_, next, err := readString(payload, j)
				if err != nil {
					return 0, err
				}
				j = next
			}
			next, err := skipValue(payload, j)
			if err != nil {
				return 0, err
			}
			j = next
		}
	default:
		_, next, err := readString(payload, i)
		return next, err
	}
}
