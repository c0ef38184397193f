// Package pipeline runs the site's batch jobs and records them in the run
// ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TobiSchelling/newsops/internal/archive"
	"github.com/TobiSchelling/newsops/internal/classify"
	"github.com/TobiSchelling/newsops/internal/config"
	"github.com/TobiSchelling/newsops/internal/database"
	"github.com/TobiSchelling/newsops/internal/images"
	"github.com/TobiSchelling/newsops/internal/logger"
	"github.com/TobiSchelling/newsops/internal/streams"
)

// Job names, as recorded in the run ledger.
const (
	JobImages   = "images"
	JobMaintain = "maintain"
	JobHomepage = "homepage"
	JobStreams  = "streams"
)

// StepResult holds the result of a single job.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps []StepResult
}

// Err returns the first step error, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", s.Name, s.Err)
		}
	}
	return nil
}

// SearcherFactory builds the live-stream searcher once the API key is known.
type SearcherFactory func(ctx context.Context, apiKey string) (streams.Searcher, error)

// Pipeline runs the image fetcher, archive maintenance and the stream
// updater.
type Pipeline struct {
	cfg         *config.Config
	ledger      *database.Ledger
	log         *slog.Logger
	newSearcher SearcherFactory
	now         func() time.Time
}

// New creates a new pipeline. ledger may be nil.
func New(cfg *config.Config, ledger *database.Ledger, log *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		ledger: ledger,
		log:    logger.OrDefault(log),
		newSearcher: func(ctx context.Context, apiKey string) (streams.Searcher, error) {
			return streams.NewYouTubeSearcher(ctx, apiKey, cfg.Streams.MaxResults)
		},
		now: time.Now,
	}
}

// WithSearcherFactory replaces how the stream searcher is built.
func (p *Pipeline) WithSearcherFactory(f SearcherFactory) *Pipeline {
	p.newSearcher = f
	return p
}

// Run executes images, maintain and streams in order. A failing job is
// recorded and the next one still runs.
func (p *Pipeline) Run(ctx context.Context) *Result {
	r := &Result{}
	jobs := []struct {
		name string
		run  func(context.Context) StepResult
	}{
		{JobImages, p.RunImages},
		{JobMaintain, func(ctx context.Context) StepResult { return p.RunMaintain(ctx, false) }},
		{JobStreams, p.RunStreams},
	}

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			r.Steps = append(r.Steps, StepResult{Name: job.name, Err: err})
			continue
		}
		p.log.Info("running job", "step", fmt.Sprintf("%d/%d", i+1, len(jobs)), "job", job.name)
		r.Steps = append(r.Steps, job.run(ctx))
	}
	return r
}

// DryRun reports what Run would do without writing files or calling any
// remote service.
func (p *Pipeline) DryRun(ctx context.Context) *Result {
	r := &Result{}

	f := images.NewFetcher(p.cfg.Images, p.log)
	missing := f.Missing(p.cfg.Images.Files)
	r.Steps = append(r.Steps, StepResult{
		Name:    JobImages,
		Summary: fmt.Sprintf("[dry-run] %d of %d images would be downloaded", len(missing), len(p.cfg.Images.Files)),
	})

	r.Steps = append(r.Steps, p.maintain(ctx, false, true))

	step := StepResult{Name: JobStreams}
	if cfgs, err := streams.LoadStreamConfig(p.cfg.Streams.ConfigFile); err != nil {
		step.Err = err
	} else {
		keyState := "set"
		if _, err := streams.APIKeyFromEnv(p.cfg.Streams.APIKeyEnv); err != nil {
			keyState = "NOT set"
		}
		step.Summary = fmt.Sprintf("[dry-run] %d channels would be checked (%s %s)", len(cfgs), p.cfg.Streams.APIKeyEnv, keyState)
	}
	r.Steps = append(r.Steps, step)

	return r
}

// RunImages downloads missing or truncated images.
func (p *Pipeline) RunImages(ctx context.Context) StepResult {
	id := p.ledger.Start(JobImages)

	f := images.NewFetcher(p.cfg.Images, p.log.With("job", JobImages))
	res := f.FetchAll(ctx, p.cfg.Images.Files)
	step := StepResult{
		Name: JobImages,
		Summary: fmt.Sprintf("Downloaded %d images, %d already present, %d failed, %d suspiciously small",
			res.Downloaded, res.Skipped, res.Failed(), len(res.Undersized)),
		Err: ctx.Err(),
	}

	p.ledger.Finish(id, step.Summary, step.Err)
	return step
}

// RunMaintain cleans the archive and, unless skipHomepage is set, rebuilds
// the homepage. A missing archive directory is reported, not failed.
func (p *Pipeline) RunMaintain(ctx context.Context, skipHomepage bool) StepResult {
	id := p.ledger.Start(JobMaintain)
	step := p.maintain(ctx, skipHomepage, false)
	p.ledger.Finish(id, step.Summary, step.Err)
	return step
}

// RunHomepage rebuilds the homepage without touching the archive.
func (p *Pipeline) RunHomepage(ctx context.Context) StepResult {
	id := p.ledger.Start(JobHomepage)
	step := StepResult{Name: JobHomepage}

	m, err := p.maintainer(false)
	if err != nil {
		step.Err = err
	} else if snap, err := m.RebuildHomepage(ctx); err != nil {
		step.Err = err
	} else {
		step.Summary = fmt.Sprintf("Homepage rebuilt with %d items", len(snap.News))
	}

	p.ledger.Finish(id, step.Summary, step.Err)
	return step
}

// RunStreams checks every configured channel and writes the live snapshot.
// A missing API key fails the job before any request is made.
func (p *Pipeline) RunStreams(ctx context.Context) StepResult {
	id := p.ledger.Start(JobStreams)
	step, checks := p.checkStreams(ctx)
	p.ledger.StreamChecks(id, checks)
	p.ledger.Finish(id, step.Summary, step.Err)
	return step
}

func (p *Pipeline) maintainer(dryRun bool) (*archive.Maintainer, error) {
	c, err := classify.New(p.cfg.Classification)
	if err != nil {
		return nil, err
	}
	m := archive.NewMaintainer(p.cfg.Paths.ArchiveDir, p.cfg.Paths.HomepageFile, c, p.log.With("job", JobMaintain))
	m.DryRun = dryRun
	m.Now = p.now
	return m, nil
}

func (p *Pipeline) maintain(ctx context.Context, skipHomepage, dryRun bool) StepResult {
	prefix := ""
	if dryRun {
		prefix = "[dry-run] "
	}
	step := StepResult{Name: JobMaintain}

	m, err := p.maintainer(dryRun)
	if err != nil {
		step.Err = err
		return step
	}

	res, err := m.Clean(ctx)
	if errors.Is(err, archive.ErrNoArchive) {
		step.Summary = fmt.Sprintf("%sNo archive directory at %s, nothing to do", prefix, p.cfg.Paths.ArchiveDir)
		return step
	}
	if err != nil {
		step.Err = err
		return step
	}
	step.Summary = fmt.Sprintf("%sRemoved %d false positives, reclassified %d items, rewrote %d of %d files",
		prefix, res.Deleted, res.Reclassified, res.Rewritten, len(res.Files))

	if skipHomepage {
		return step
	}
	snap, err := m.RebuildHomepage(ctx)
	if err != nil {
		step.Err = err
		return step
	}
	step.Summary += fmt.Sprintf("; homepage has %d items", len(snap.News))
	return step
}

func (p *Pipeline) checkStreams(ctx context.Context) (StepResult, []database.StreamCheck) {
	step := StepResult{Name: JobStreams}

	apiKey, err := streams.APIKeyFromEnv(p.cfg.Streams.APIKeyEnv)
	if err != nil {
		step.Err = err
		return step, nil
	}
	cfgs, err := streams.LoadStreamConfig(p.cfg.Streams.ConfigFile)
	if err != nil {
		step.Err = err
		return step, nil
	}
	searcher, err := p.newSearcher(ctx, apiKey)
	if err != nil {
		step.Err = err
		return step, nil
	}

	u := streams.NewUpdater(searcher, p.log.With("job", JobStreams))
	snap := u.Update(ctx, cfgs)
	// An interrupted run only knows part of the picture; keep the last
	// published snapshot instead.
	if err := ctx.Err(); err != nil {
		p.log.Warn("stream check interrupted, snapshot not written", "path", p.cfg.Streams.OutputFile)
		step.Err = err
		return step, nil
	}
	if err := streams.WriteSnapshot(p.cfg.Streams.OutputFile, snap, p.log); err != nil {
		step.Err = err
		return step, nil
	}

	checkedAt := p.now()
	checks := make([]database.StreamCheck, 0, len(snap.Streams))
	for _, s := range snap.Streams {
		checks = append(checks, database.StreamCheck{
			StreamID:    s.ID,
			DisplayName: s.DisplayName,
			IsLive:      s.IsLive,
			VideoID:     s.VideoID,
			Title:       s.Title,
			MatchScore:  s.MatchScore,
			CheckedAt:   checkedAt,
		})
	}

	step.Summary = fmt.Sprintf("%d of %d channels live, snapshot written to %s", snap.Live(), len(snap.Streams), p.cfg.Streams.OutputFile)
	return step, checks
}
