// Package episode classifies tracker release names against a requested
// season and episode. Everything here is pure and safe for concurrent use.
package episode

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/murrou-cell/stremio-zamunda/internal/domain"
)

// Season and episode numbers are rendered with two digits, so anything
// outside this range can never match.
const maxNumber = 99

var (
	episodeShapedPattern = regexp.MustCompile(`(?i)S\d\dE\d\d`)
	videoExtensions      = []string{".mkv", ".mp4", ".avi", ".mov", ".flv"}

	seasonPatternCache sync.Map // season -> seasonPatterns
)

// Word boundaries count any letter or digit as part of a word, Cyrillic
// included. RE2's \b only knows ASCII.
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`
)

type seasonPatterns struct {
	short *regexp.Regexp
	long  *regexp.Regexp
}

func patternsFor(season int) seasonPatterns {
	if cached, ok := seasonPatternCache.Load(season); ok {
		return cached.(seasonPatterns)
	}
	patterns := seasonPatterns{
		short: regexp.MustCompile(fmt.Sprintf(`(?i)%sS%02d%s`, wordStart, season, wordEnd)),
		long:  regexp.MustCompile(fmt.Sprintf(`(?i)%sSeason %d%s`, wordStart, season, wordEnd)),
	}
	actual, _ := seasonPatternCache.LoadOrStore(season, patterns)
	return actual.(seasonPatterns)
}

type MatchKind int

const (
	NoMatch MatchKind = iota
	SingleEpisode
	SeasonPack
)

func (k MatchKind) String() string {
	switch k {
	case SingleEpisode:
		return "single-episode"
	case SeasonPack:
		return "season-pack"
	default:
		return "no-match"
	}
}

// Match is the classification of one torrent. FileIndex and FileSizeBytes
// are meaningful only for SeasonPack.
type Match struct {
	Kind          MatchKind
	FileIndex     int
	FileSizeBytes int64
}

func inRange(values ...int) bool {
	for _, value := range values {
		if value < 0 || value > maxNumber {
			return false
		}
	}
	return true
}

// Tag returns the lowercased `sXXeYY` token for a season and episode.
func Tag(season, episode int) string {
	return fmt.Sprintf("s%02de%02d", season, episode)
}

func IsSingleEpisode(name string, season, episode int) bool {
	if !inRange(season, episode) {
		return false
	}
	return strings.Contains(strings.ToLower(name), Tag(season, episode))
}

// IsFullSeasonPack reports whether name looks like a whole-season release:
// a standalone `S01` or `Season 1`, and no episode tag of any number.
func IsFullSeasonPack(name string, season int) bool {
	if !inRange(season) {
		return false
	}
	patterns := patternsFor(season)
	if !patterns.short.MatchString(name) && !patterns.long.MatchString(name) {
		return false
	}
	return !episodeShapedPattern.MatchString(name)
}

func isVideoFile(lowerName string) bool {
	for _, ext := range videoExtensions {
		if strings.HasSuffix(lowerName, ext) {
			return true
		}
	}
	return false
}

// FindEpisodeFile returns the index and size of the first video file whose
// name carries the episode tag. Provider file order is significant.
func FindEpisodeFile(files []domain.TorrentFile, season, episode int) (int, int64, bool) {
	if !inRange(season, episode) {
		return 0, 0, false
	}
	tag := Tag(season, episode)
	for index, file := range files {
		lower := strings.ToLower(file.Name)
		if !isVideoFile(lower) {
			continue
		}
		if strings.Contains(lower, tag) {
			return index, file.SizeBytes, true
		}
	}
	return 0, 0, false
}

// Classify applies the single-episode check first; only names that fail it
// are considered as season packs.
func Classify(torrent domain.TorrentRecord, season, episode int) Match {
	if IsSingleEpisode(torrent.Name, season, episode) {
		return Match{Kind: SingleEpisode}
	}
	if !IsFullSeasonPack(torrent.Name, season) {
		return Match{Kind: NoMatch}
	}
	index, size, ok := FindEpisodeFile(torrent.Files, season, episode)
	if !ok {
		return Match{Kind: NoMatch}
	}
	return Match{Kind: SeasonPack, FileIndex: index, FileSizeBytes: size}
}
