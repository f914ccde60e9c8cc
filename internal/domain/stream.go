package domain

type StreamBehaviorHints struct {
	BingeGroup string `json:"bingeGroup"`
}

// Stream is the client-facing descriptor for one playable release. Name is
// the multi-line label shown in the client; FileIdx is set only when the
// stream points at one file inside a season pack.
type Stream struct {
	Name          string              `json:"name"`
	InfoHash      string              `json:"infoHash"`
	Description   string              `json:"description"`
	BehaviorHints StreamBehaviorHints `json:"behaviorHints"`
	FileIdx       *int                `json:"fileIdx,omitempty"`
}

type StreamResponse struct {
	Streams []Stream `json:"streams"`
}

func CloneStreams(streams []Stream) []Stream {
	if streams == nil {
		return nil
	}
	cloned := make([]Stream, len(streams))
	for i, item := range streams {
		copied := item
		if item.FileIdx != nil {
			value := *item.FileIdx
			copied.FileIdx = &value
		}
		cloned[i] = copied
	}
	return cloned
}
