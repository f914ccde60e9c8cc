package common

import (
	"strings"
	"testing"
)

const sampleHash = "0123456789abcdef0123456789abcdef01234567"

// ---------------------------------------------------------------------------
// NormalizeInfoHash
// ---------------------------------------------------------------------------

func TestNormalizeInfoHash(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase hex", sampleHash, sampleHash},
		{"uppercase hex", strings.ToUpper(sampleHash), sampleHash},
		{"urn prefix", "urn:btih:" + sampleHash, sampleHash},
		{"whitespace", "  " + sampleHash + "\n", sampleHash},
		{"base32", "AERUKZ4JVPG66AJDIVTYTK6N54ASGRLH", sampleHash},
		{"too short", "abcdef1234567890", ""},
		{"not hex", strings.Repeat("z", 40), ""},
		{"empty", "", ""},
		{"prefix only", "urn:btih:", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeInfoHash(tc.input); got != tc.want {
				t.Errorf("NormalizeInfoHash(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// BuildMagnet
// ---------------------------------------------------------------------------

func TestBuildMagnetWithName(t *testing.T) {
	magnet := BuildMagnet(strings.ToUpper(sampleHash), "  Шоуто S01 BG Audio ")
	if !strings.HasPrefix(magnet, "magnet:?xt=urn:btih:"+sampleHash) {
		t.Fatalf("unexpected magnet: %s", magnet)
	}
	if !strings.Contains(magnet, "&dn=%D0%A8%D0%BE%D1%83%D1%82%D0%BE+S01+BG+Audio") {
		t.Fatalf("expected encoded name in magnet: %s", magnet)
	}
}

func TestBuildMagnetTrackers(t *testing.T) {
	magnet := BuildMagnet(sampleHash, "", "udp://tracker.example:1337/announce", " ", "http://other.example/announce")
	if strings.Contains(magnet, "&dn=") {
		t.Fatalf("empty name should be omitted: %s", magnet)
	}
	if count := strings.Count(magnet, "&tr="); count != 2 {
		t.Fatalf("expected 2 trackers, got %d in %s", count, magnet)
	}
}

func TestBuildMagnetRejectsInvalidHash(t *testing.T) {
	if magnet := BuildMagnet("not-a-hash", "Film"); magnet != "" {
		t.Fatalf("expected empty magnet, got %s", magnet)
	}
}
