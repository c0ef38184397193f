package streams

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// Searcher finds the live broadcasts of a channel.
type Searcher interface {
	SearchLive(ctx context.Context, channelID string) ([]Video, error)
}

// YouTubeSearcher searches live broadcasts with the YouTube Data API.
type YouTubeSearcher struct {
	svc        *youtube.Service
	maxResults int64
}

// NewYouTubeSearcher creates a searcher authenticated with apiKey. Extra
// client options are appended after the key.
func NewYouTubeSearcher(ctx context.Context, apiKey string, maxResults int64, opts ...option.ClientOption) (*YouTubeSearcher, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if maxResults <= 0 {
		maxResults = 50
	}
	svc, err := youtube.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating youtube client: %w", err)
	}
	return &YouTubeSearcher{svc: svc, maxResults: maxResults}, nil
}

// SearchLive returns the channel's live videos in the order the API ranks
// them.
func (s *YouTubeSearcher) SearchLive(ctx context.Context, channelID string) ([]Video, error) {
	resp, err := s.svc.Search.List([]string{"id", "snippet"}).
		ChannelId(channelID).
		EventType("live").
		Type("video").
		MaxResults(s.maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("searching channel %s: %w", channelID, err)
	}

	videos := make([]Video, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		v := Video{ID: item.Id.VideoId}
		if item.Snippet != nil {
			v.Title = item.Snippet.Title
		}
		videos = append(videos, v)
	}
	return videos, nil
}
