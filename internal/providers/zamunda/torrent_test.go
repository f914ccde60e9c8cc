package zamunda

import (
	"crypto/sha1"
	"encoding/hex"
	"testing"
)

func TestExtractInfoHash(t *testing.T) {
	info := []byte("d4:name4:test12:piece lengthi16384ee")
	payload := append([]byte("d8:announce3:url4:info"), info...)
	payload = append(payload, 'e')

	wantBytes := sha1.Sum(info)
	want := hex.EncodeToString(wantBytes[:])

	got, err := extractInfoHash(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestExtractInfoHashMissingInfo(t *testing.T) {
	if _, err := extractInfoHash([]byte("d8:announce3:urle")); err == nil {
		t.Fatal("expected error for torrent without info dict")
	}
	if _, err := extractInfoHash([]byte("<html>")); err == nil {
		t.Fatal("expected error for non-bencode payload")
	}
	if _, err := extractInfoHash([]byte("d4:infod4:name")); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestParseTorrentSingleFile(t *testing.T) {
	meta, err := parseTorrent(singleFileTorrent(t, "Film.2020.mkv", 4096))
	if err != nil {
		t.Fatalf("parseTorrent: %v", err)
	}
	if len(meta.InfoHash) != 40 {
		t.Fatalf("unexpected infohash %q", meta.InfoHash)
	}
	if len(meta.Files) != 1 || meta.Files[0].Name != "Film.2020.mkv" || meta.Files[0].SizeBytes != 4096 {
		t.Fatalf("unexpected files: %+v", meta.Files)
	}
}

func TestParseTorrentMultiFileKeepsOrder(t *testing.T) {
	order := []string{"b.mkv", "a.mkv"}
	meta, err := parseTorrent(multiFileTorrent(t, "Pack", map[string]int64{"a.mkv": 1, "b.mkv": 2}, order))
	if err != nil {
		t.Fatalf("parseTorrent: %v", err)
	}
	if len(meta.Files) != 2 || meta.Files[0].Name != "Pack/b.mkv" || meta.Files[1].Name != "Pack/a.mkv" {
		t.Fatalf("unexpected files: %+v", meta.Files)
	}
}
