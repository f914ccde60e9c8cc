package streams

import (
	"strings"

	"github.com/murrou-cell/stremio-zamunda/internal/domain"
)

// MergeResults concatenates the query results in the order given, keeping
// the first occurrence of every infohash. A nil list stands for a failed
// query and is skipped like an empty one.
func MergeResults(lists ...[]domain.TorrentRecord) []domain.TorrentRecord {
	total := 0
	for _, list := range lists {
		total += len(list)
	}
	merged := make([]domain.TorrentRecord, 0, total)
	seen := make(map[string]struct{}, total)
	for _, list := range lists {
		for _, item := range list {
			key := dedupeKey(item)
			if key == "" {
				continue
			}
			if _, exists := seen[key]; exists {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, item)
		}
	}
	return merged
}

func dedupeKey(item domain.TorrentRecord) string {
	return strings.ToLower(strings.TrimSpace(item.InfoHash))
}
