package database

import "log/slog"

// Ledger records job runs on a best-effort basis. Every write error is
// logged and swallowed, and a Ledger without a database does nothing, so
// jobs never fail because of bookkeeping.
type Ledger struct {
	db  *DB
	log *slog.Logger
}

// NewLedger wraps db, which may be nil.
func NewLedger(db *DB, log *slog.Logger) *Ledger {
	if log == nil && db != nil {
		log = db.log
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{db: db, log: log}
}

// Start records a run start and returns its ID, or "" if nothing was
// recorded.
func (l *Ledger) Start(job string) string {
	if l == nil || l.db == nil {
		return ""
	}
	id, err := l.db.StartRun(job)
	if err != nil {
		l.log.Warn("run ledger unavailable", "job", job, "error", err)
		return ""
	}
	return id
}

// Finish records the end of a run started with Start.
func (l *Ledger) Finish(id, summary string, runErr error) {
	if l == nil || l.db == nil || id == "" {
		return
	}
	if err := l.db.FinishRun(id, summary, runErr); err != nil {
		l.log.Warn("could not record run finish", "run", id, "error", err)
	}
}

// StreamChecks records the channel outcomes of a run started with Start.
func (l *Ledger) StreamChecks(id string, checks []StreamCheck) {
	if l == nil || l.db == nil || id == "" {
		return
	}
	if err := l.db.RecordStreamChecks(id, checks); err != nil {
		l.log.Warn("could not record stream checks", "run", id, "error", err)
	}
}
