package streams

import (
	"fmt"
	"strings"

	"github.com/murrou-cell/stremio-zamunda/internal/domain"
)

const (
	sourceMarker = "Zamunda.net"
	bgAudioFlag  = "🇧🇬🔊"
	bingePrefix  = "zamunda"
)

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FileSelection points a stream at one file inside a season pack.
type FileSelection struct {
	Index     int
	SizeBytes int64
}

// BuildStream turns a matched torrent into a client stream. The only
// rejection is the bg-audio filter; ok is false when the torrent is filtered.
func BuildStream(torrent domain.TorrentRecord, bgAudioOnly bool, file *FileSelection) (domain.Stream, bool) {
	if bgAudioOnly && !torrent.BGAudio {
		return domain.Stream{}, false
	}

	size := torrent.Size
	if file != nil {
		size = FormatBytes(file.SizeBytes) + "/" + torrent.Size
	}

	stream := domain.Stream{
		Name:        streamLabel(torrent, size),
		InfoHash:    torrent.InfoHash,
		Description: torrent.Name,
		BehaviorHints: domain.StreamBehaviorHints{
			BingeGroup: bingeGroup(torrent.BGAudio, file != nil),
		},
	}
	if file != nil {
		index := file.Index
		stream.FileIdx = &index
	}
	return stream, true
}

func streamLabel(torrent domain.TorrentRecord, size string) string {
	var details strings.Builder
	if torrent.BGAudio {
		details.WriteString(bgAudioFlag)
		details.WriteString(" ")
	}
	fmt.Fprintf(&details, "💾%s - 👤%d", size, torrent.Seeders)
	return sourceMarker + "\n" + details.String()
}

func bingeGroup(bgAudio, packFile bool) string {
	audio := "nonbg"
	if bgAudio {
		audio = "bg"
	}
	group := bingePrefix + "-" + audio
	if packFile {
		group += "-binge"
	}
	return group
}

// FormatBytes renders n with two decimals in the largest unit that keeps
// the value below 1024, up to PB.
func FormatBytes(n int64) string {
	value := float64(n)
	for _, unit := range byteUnits {
		if value < 1024 {
			return fmt.Sprintf("%.2f%s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.2fPB", value)
}
