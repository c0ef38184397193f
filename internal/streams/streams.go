// Package streams detects which configured channels are live and which of
// their broadcasts matches the keywords the site cares about.
package streams

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/TobiSchelling/newsops/internal/jsonfile"
)

// ErrMissingAPIKey is returned when no video API key is configured.
var ErrMissingAPIKey = errors.New("video API key not set")

// APIKeyFromEnv reads the video API key from the named environment variable.
func APIKeyFromEnv(name string) (string, error) {
	key := strings.TrimSpace(os.Getenv(name))
	if key == "" {
		return "", fmt.Errorf("%w: set %s", ErrMissingAPIKey, name)
	}
	return key, nil
}

// StreamConfig is one monitored channel.
type StreamConfig struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	ChannelID   string   `json:"channelId"`
	ChannelName string   `json:"channelName"`
	Keywords    []string `json:"keywords"`
}

type configFile struct {
	Streams []StreamConfig `json:"streams"`
}

// LoadStreamConfig reads the channel list from a JSON file of the form
// {"streams": [...]}.
func LoadStreamConfig(path string) ([]StreamConfig, error) {
	var cf configFile
	if err := jsonfile.Read(path, &cf); err != nil {
		return nil, err
	}
	for i, s := range cf.Streams {
		if s.ID == "" || s.ChannelID == "" {
			return nil, fmt.Errorf("stream config %s: entry %d needs id and channelId", path, i)
		}
	}
	return cf.Streams, nil
}

// Video is a live broadcast returned by a search.
type Video struct {
	ID    string
	Title string
}

// Match is the video picked for a channel.
type Match struct {
	Video Video
	Score int
}

// Score counts the keywords occurring in title, ignoring case.
func Score(title string, keywords []string) int {
	t := strings.ToLower(title)
	score := 0
	for _, k := range keywords {
		if strings.Contains(t, strings.ToLower(k)) {
			score++
		}
	}
	return score
}

// BestMatch returns the highest scoring video. Ties go to the video returned
// first, so a list where nothing scores yields its first entry.
func BestMatch(videos []Video, keywords []string) (Match, bool) {
	if len(videos) == 0 {
		return Match{}, false
	}
	best := Match{Video: videos[0], Score: Score(videos[0].Title, keywords)}
	for _, v := range videos[1:] {
		if s := Score(v.Title, keywords); s > best.Score {
			best = Match{Video: v, Score: s}
		}
	}
	return best, true
}
