// Package archive maintains the day-partitioned news archive and the
// homepage snapshot built from it.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/newsops/internal/classify"
	"github.com/TobiSchelling/newsops/internal/jsonfile"
	"github.com/TobiSchelling/newsops/internal/logger"
)

// ErrNoArchive is returned when the archive directory does not exist.
var ErrNoArchive = errors.New("archive directory not found")

const (
	dateLayout        = "2006-01-02"
	lastUpdatedLayout = "2006年01月02日 15时04分"
	homepageDays      = 2
)

// Snapshot is the homepage document.
type Snapshot struct {
	LastUpdated string `json:"last_updated"`
	News        []Item `json:"news"`
}

// FileResult describes what maintenance did to one archive file.
type FileResult struct {
	Name         string
	Items        int
	Deleted      int
	Reclassified int
	Rewritten    bool
}

// Result holds the results of a maintenance pass.
type Result struct {
	Files        []FileResult
	Deleted      int
	Reclassified int
	Rewritten    int
}

// Maintainer cleans archive files and rebuilds the homepage snapshot.
type Maintainer struct {
	dir          string
	homepagePath string
	classifier   *classify.Classifier
	log          *slog.Logger

	// DryRun computes results without writing any file.
	DryRun bool
	// Now is the clock used for the homepage window; defaults to time.Now.
	Now func() time.Time
}

// NewMaintainer creates a maintainer over the archive in dir writing the
// homepage snapshot to homepagePath.
func NewMaintainer(dir, homepagePath string, c *classify.Classifier, log *slog.Logger) *Maintainer {
	return &Maintainer{
		dir:          dir,
		homepagePath: homepagePath,
		classifier:   c,
		log:          logger.OrDefault(log),
		Now:          time.Now,
	}
}

// Run cleans every archive file and then rebuilds the homepage. Without an
// archive directory nothing is written and ErrNoArchive is returned.
func (m *Maintainer) Run(ctx context.Context) (*Result, *Snapshot, error) {
	res, err := m.Clean(ctx)
	if err != nil {
		return res, nil, err
	}
	snap, err := m.RebuildHomepage(ctx)
	if err != nil {
		return res, nil, err
	}
	return res, snap, nil
}

// Clean drops false positives and reclassifies the remaining items of every
// archive file. A file is rewritten only when something changed, so running
// Clean twice leaves the archive untouched the second time.
func (m *Maintainer) Clean(ctx context.Context) (*Result, error) {
	names, err := m.archiveFiles()
	if err != nil {
		return &Result{}, err
	}

	m.log.Info("starting archive maintenance", "dir", m.dir, "files", len(names), "dry_run", m.DryRun)

	r := &Result{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return r, err
		}

		fr, err := m.cleanFile(name)
		if err != nil {
			return r, err
		}
		r.Files = append(r.Files, *fr)
		r.Deleted += fr.Deleted
		r.Reclassified += fr.Reclassified
		if fr.Rewritten {
			r.Rewritten++
			m.log.Info("archive file updated", "file", name, "deleted", fr.Deleted, "reclassified", fr.Reclassified)
		} else {
			m.log.Debug("archive file unchanged", "file", name)
		}
	}

	m.log.Info("archive maintenance complete", "deleted", r.Deleted, "reclassified", r.Reclassified, "rewritten", r.Rewritten)
	return r, nil
}

func (m *Maintainer) cleanFile(name string) (*FileResult, error) {
	path := filepath.Join(m.dir, name)
	var items []Item
	if err := jsonfile.Read(path, &items); err != nil {
		return nil, err
	}

	kept, fr := m.cleanItems(name, items, m.log)
	if fr.Deleted == 0 && fr.Reclassified == 0 {
		return fr, nil
	}
	fr.Rewritten = true
	if m.DryRun {
		return fr, nil
	}
	if err := jsonfile.Write(path, kept); err != nil {
		return nil, err
	}
	return fr, nil
}

// cleanItems drops false positives and fixes categories in memory.
func (m *Maintainer) cleanItems(name string, items []Item, log *slog.Logger) ([]Item, *FileResult) {
	fr := &FileResult{Name: name, Items: len(items)}
	kept := make([]Item, 0, len(items))
	for i := range items {
		it := items[i]
		if m.classifier.IsFalsePositive(it.SourceTitle(), it.Origin()) {
			log.Info("removing false positive", "file", name, "title", it.SourceTitle())
			fr.Deleted++
			continue
		}
		if cat := m.classifier.Classify(it.Title()); cat != it.Category() {
			log.Debug("reclassified", "file", name, "from", it.Category(), "to", cat, "title", it.Title())
			it.SetCategory(cat)
			fr.Reclassified++
		}
		kept = append(kept, it)
	}
	return kept, fr
}

// RebuildHomepage writes the homepage snapshot: the union of today's and
// yesterday's archive with one item per clean title key, newest first. In
// dry-run mode nothing is written and the items are cleaned in memory first.
func (m *Maintainer) RebuildHomepage(ctx context.Context) (*Snapshot, error) {
	now := m.Now().In(m.classifier.Location())

	news := make([]Item, 0)
	seen := make(map[string]struct{})
	for _, date := range homepageDates(now) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(m.dir, date+".json")
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			m.log.Debug("no archive for date", "date", date)
			continue
		}

		var items []Item
		if err := jsonfile.Read(path, &items); err != nil {
			return nil, err
		}
		if m.DryRun {
			// Clean left the files alone; show what a real run would publish.
			items, _ = m.cleanItems(date+".json", items, logger.Discard())
		}
		for _, it := range items {
			key := classify.CleanTitleKey(it.SourceTitle())
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			news = append(news, it)
		}
	}

	SortNewestFirst(news)

	snap := &Snapshot{
		LastUpdated: now.Format(lastUpdatedLayout),
		News:        news,
	}
	if !m.DryRun {
		if err := jsonfile.Write(m.homepagePath, snap); err != nil {
			return nil, err
		}
	}
	m.log.Info("homepage rebuilt", "path", m.homepagePath, "items", len(news))
	return snap, nil
}

// SortNewestFirst orders items by timestamp, newest first. Items with equal
// timestamps keep their relative order.
func SortNewestFirst(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp() > items[j].Timestamp()
	})
}

func homepageDates(now time.Time) []string {
	dates := make([]string, 0, homepageDays)
	for d := 0; d < homepageDays; d++ {
		dates = append(dates, now.AddDate(0, 0, -d).Format(dateLayout))
	}
	return dates
}

func (m *Maintainer) archiveFiles() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		m.log.Warn("archive directory not found", "dir", m.dir)
		return nil, ErrNoArchive
	}
	if err != nil {
		return nil, fmt.Errorf("listing archive: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
