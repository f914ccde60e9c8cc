package domain

// TorrentFile is one entry of a multi-file torrent, in the order the
// torrent metadata lists it.
type TorrentFile struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
}

// TorrentRecord is a single release returned by the tracker for one query.
// Size is the tracker's own human-readable total and is passed through as-is.
type TorrentRecord struct {
	Name     string        `json:"name"`
	InfoHash string        `json:"infoHash"`
	Size     string        `json:"size"`
	Seeders  int           `json:"seeders"`
	BGAudio  bool          `json:"bgAudio"`
	Files    []TorrentFile `json:"files,omitempty"`
}

// SearchQuery is what the orchestrator asks the tracker for. Strict keeps
// only rows whose name carries every query token; Broad widens the category
// set from the primary video categories to the broader one.
type SearchQuery struct {
	Query    string
	Username string
	Password string
	Strict   bool
	Broad    bool
}
