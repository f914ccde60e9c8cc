package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type MediaType string

const (
	MediaTypeMovie  MediaType = "movie"
	MediaTypeSeries MediaType = "series"
)

// StreamRequest is a parsed `/stream/{type}/{id}` lookup. For series the
// raw id has the form `{externalId}:{season}:{episode}`.
type StreamRequest struct {
	Type       MediaType
	ID         string
	ExternalID string
	Season     int
	Episode    int
}

func (r StreamRequest) IsSeries() bool {
	return r.Type == MediaTypeSeries
}

func (r StreamRequest) String() string {
	if r.IsSeries() {
		return fmt.Sprintf("%s %s S%02dE%02d", r.Type, r.ExternalID, r.Season, r.Episode)
	}
	return fmt.Sprintf("%s %s", r.Type, r.ExternalID)
}

func ParseStreamRequest(rawType, rawID string) (StreamRequest, error) {
	id := strings.TrimSuffix(strings.TrimSpace(rawID), ".json")
	if id == "" {
		return StreamRequest{}, fmt.Errorf("%w: empty id", ErrInvalidRequest)
	}

	switch MediaType(strings.ToLower(strings.TrimSpace(rawType))) {
	case MediaTypeMovie:
		return StreamRequest{Type: MediaTypeMovie, ID: id, ExternalID: id}, nil
	case MediaTypeSeries:
		parts := strings.Split(id, ":")
		if len(parts) != 3 || strings.TrimSpace(parts[0]) == "" {
			return StreamRequest{}, fmt.Errorf("%w: series id must be {id}:{season}:{episode}", ErrInvalidRequest)
		}
		season, err := strconv.Atoi(parts[1])
		if err != nil || season < 0 {
			return StreamRequest{}, fmt.Errorf("%w: invalid season %q", ErrInvalidRequest, parts[1])
		}
		episode, err := strconv.Atoi(parts[2])
		if err != nil || episode < 0 {
			return StreamRequest{}, fmt.Errorf("%w: invalid episode %q", ErrInvalidRequest, parts[2])
		}
		return StreamRequest{
			Type:       MediaTypeSeries,
			ID:         id,
			ExternalID: strings.TrimSpace(parts[0]),
			Season:     season,
			Episode:    episode,
		}, nil
	default:
		return StreamRequest{}, ErrUnsupportedType
	}
}
