package streams

import (
	"context"
	"log/slog"
	"time"

	"github.com/TobiSchelling/newsops/internal/jsonfile"
	"github.com/TobiSchelling/newsops/internal/logger"
)

const lastUpdatedLayout = "2006-01-02T15:04:05.000000"

// Status is the published state of one channel. VideoID and Title are null
// while the channel is offline.
type Status struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName"`
	ChannelName string  `json:"channelName"`
	IsLive      bool    `json:"isLive"`
	VideoID     *string `json:"videoId"`
	Title       *string `json:"title"`
	MatchScore  int     `json:"matchScore"`
}

// Snapshot is the document written for the site.
type Snapshot struct {
	LastUpdated string   `json:"lastUpdated"`
	Streams     []Status `json:"streams"`
}

// Live returns the number of live channels in the snapshot.
func (s *Snapshot) Live() int {
	n := 0
	for _, st := range s.Streams {
		if st.IsLive {
			n++
		}
	}
	return n
}

// Updater builds stream snapshots.
type Updater struct {
	searcher Searcher
	log      *slog.Logger
	now      func() time.Time
}

// NewUpdater creates an updater using searcher.
func NewUpdater(searcher Searcher, log *slog.Logger) *Updater {
	return &Updater{searcher: searcher, log: logger.OrDefault(log), now: time.Now}
}

// Update checks every channel in order. A failed search marks that channel
// offline and the batch carries on.
func (u *Updater) Update(ctx context.Context, configs []StreamConfig) *Snapshot {
	snap := &Snapshot{
		LastUpdated: u.now().Format(lastUpdatedLayout),
		Streams:     make([]Status, 0, len(configs)),
	}

	for _, c := range configs {
		st := Status{ID: c.ID, DisplayName: c.DisplayName, ChannelName: c.ChannelName}

		if ctx.Err() != nil {
			u.log.Warn("stream check interrupted", "stream", c.ID)
			snap.Streams = append(snap.Streams, st)
			continue
		}

		videos, err := u.searcher.SearchLive(ctx, c.ChannelID)
		if err != nil {
			u.log.Error("stream search failed", "stream", c.ID, "channel", c.ChannelID, "error", err)
			snap.Streams = append(snap.Streams, st)
			continue
		}

		m, ok := BestMatch(videos, c.Keywords)
		if !ok {
			u.log.Info("channel offline", "stream", c.ID)
			snap.Streams = append(snap.Streams, st)
			continue
		}

		id, title := m.Video.ID, m.Video.Title
		st.IsLive = true
		st.VideoID = &id
		st.Title = &title
		st.MatchScore = m.Score
		u.log.Info("channel live", "stream", c.ID, "video", id, "title", title, "score", m.Score)
		snap.Streams = append(snap.Streams, st)
	}
	return snap
}

// WriteSnapshot writes the snapshot to path, creating parent directories.
func WriteSnapshot(path string, snap *Snapshot, log *slog.Logger) error {
	if err := jsonfile.Write(path, snap); err != nil {
		return err
	}
	logger.OrDefault(log).Info("stream snapshot written",
		"path", path, "streams", len(snap.Streams), "live", snap.Live())
	return nil
}
