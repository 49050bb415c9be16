package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/mosport/venue-signal/internal/model"
	"github.com/mosport/venue-signal/internal/textmatch"
)

// SQLiteStore implements Store using modernc.org/sqlite. Timestamps are
// stored as fixed-width UTC text so range predicates compare correctly.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS venues (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	slug        TEXT,
	address     TEXT,
	city        TEXT,
	latitude    REAL NOT NULL DEFAULT 0,
	longitude   REAL NOT NULL DEFAULT 0,
	qoe_score   REAL NOT NULL DEFAULT 0,
	tags        TEXT NOT NULL DEFAULT '[]',
	is_verified INTEGER NOT NULL DEFAULT 0,
	updated_at  TEXT
);

CREATE TABLE IF NOT EXISTS events (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	league           TEXT,
	sport            TEXT,
	team_a           TEXT,
	team_b           TEXT,
	start_time       TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'scheduled',
	confidence_score REAL NOT NULL DEFAULT 0,
	last_verified    TEXT,
	override_reason  TEXT
);

CREATE TABLE IF NOT EXISTS venue_events (
	venue_id            TEXT NOT NULL REFERENCES venues(id),
	event_id            TEXT NOT NULL REFERENCES events(id),
	verification_status TEXT NOT NULL DEFAULT 'predicted',
	social_confirmed_at TEXT,
	PRIMARY KEY (venue_id, event_id)
);

CREATE TABLE IF NOT EXISTS tier_runs (
	id           TEXT PRIMARY KEY,
	tier         TEXT NOT NULL,
	success      INTEGER NOT NULL,
	selected     INTEGER NOT NULL DEFAULT 0,
	processed    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	overrides    INTEGER NOT NULL DEFAULT 0,
	message      TEXT NOT NULL DEFAULT '',
	started_at   TEXT NOT NULL,
	completed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_status_start ON events(status, start_time);
CREATE INDEX IF NOT EXISTS idx_venue_events_event ON venue_events(event_id);
CREATE INDEX IF NOT EXISTS idx_tier_runs_tier_started ON tier_runs(tier, started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var nowUTC = func() time.Time { return time.Now().UTC() }

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// parseTime accepts the layouts a row may carry. Values without a zone are
// read as UTC.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("sqlite: unparseable time %q", s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const sqliteEventColumns = `id, title, COALESCE(league, ''), COALESCE(sport, ''), COALESCE(team_a, ''), COALESCE(team_b, ''),
	start_time, status, confidence_score, last_verified, COALESCE(override_reason, '')`

const sqliteVenueColumns = `v.id, v.name, COALESCE(v.slug, ''), COALESCE(v.address, ''), COALESCE(v.city, ''),
	v.latitude, v.longitude, v.qoe_score, v.tags, v.is_verified`

func scanSQLiteEvent(row rowScanner, extra ...any) (model.Event, error) {
	var (
		e        model.Event
		start    string
		status   string
		verified sql.NullString
	)
	dest := []any{&e.ID, &e.Title, &e.League, &e.Sport, &e.TeamA, &e.TeamB,
		&start, &status, &e.ConfidenceScore, &verified, &e.OverrideReason}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return e, err
	}
	var err error
	if e.StartTime, err = parseTime(start); err != nil {
		return e, err
	}
	if e.LastVerified, err = parseNullTime(verified); err != nil {
		return e, err
	}
	e.Status = model.EventStatus(status)
	return e, nil
}

func scanSQLiteVenue(row rowScanner, extra ...any) (model.Venue, error) {
	var (
		v    model.Venue
		tags string
	)
	dest := []any{&v.ID, &v.Name, &v.Slug, &v.Address, &v.City,
		&v.Latitude, &v.Longitude, &v.QoEScore, &tags, &v.Verified}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return v, err
	}
	if err := json.Unmarshal([]byte(tags), &v.Tags); err != nil {
		return v, eris.Wrapf(err, "sqlite: decode tags for venue %s", v.ID)
	}
	return v, nil
}

func (s *SQLiteStore) ListEventsByStatus(ctx context.Context, statuses []model.EventStatus) ([]model.Event, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, st := range statusStrings(statuses) {
		args[i] = st
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteEventColumns+` FROM events WHERE status IN (`+placeholders+`) ORDER BY start_time`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events by status")
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanSQLiteEvent(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list events by status rows")
}

func (s *SQLiteStore) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteEventColumns+` FROM events WHERE id = ?`, eventID)
	e, err := scanSQLiteEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get event %s", eventID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get event %s", eventID)
	}
	return &e, nil
}

func (s *SQLiteStore) ListVenueLinks(ctx context.Context, eventID string) ([]model.VenueLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT venue_id, event_id, verification_status, social_confirmed_at
		 FROM venue_events WHERE event_id = ? ORDER BY venue_id`,
		eventID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list venue links %s", eventID)
	}
	defer rows.Close()

	var links []model.VenueLink
	for rows.Next() {
		var (
			l         model.VenueLink
			status    string
			confirmed sql.NullString
		)
		if err := rows.Scan(&l.VenueID, &l.EventID, &status, &confirmed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan venue link")
		}
		if l.SocialConfirmedAt, err = parseNullTime(confirmed); err != nil {
			return nil, err
		}
		l.Status = model.LinkStatus(status)
		links = append(links, l)
	}
	return links, eris.Wrap(rows.Err(), "sqlite: list venue links rows")
}

func (s *SQLiteStore) UpdateEventConfidence(ctx context.Context, eventID string, confidence float64, verifiedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET confidence_score = ?, last_verified = ? WHERE id = ?`,
		confidence, formatTime(verifiedAt), eventID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update event confidence %s", eventID)
	}
	return checkRowsAffected(res, "event", eventID)
}

func (s *SQLiteStore) CancelEvent(ctx context.Context, eventID, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM events WHERE id = ?`, eventID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "sqlite: cancel event %s", eventID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: read event %s", eventID)
	}
	switch model.EventStatus(status) {
	case model.EventStatusFinished, model.EventStatusCancelled:
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE events SET status = ?, override_reason = ? WHERE id = ?`,
		string(model.EventStatusCancelled), reason, eventID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: cancel event %s", eventID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit cancel")
}

func (s *SQLiteStore) MarkSocialConfirmed(ctx context.Context, venueID, eventID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE venue_events SET social_confirmed_at = ? WHERE venue_id = ? AND event_id = ?`,
		formatTime(at), venueID, eventID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark social confirmed %s/%s", venueID, eventID)
	}
	return checkRowsAffected(res, "venue link", venueID+"/"+eventID)
}

func (s *SQLiteStore) GetVenue(ctx context.Context, venueID string) (*model.Venue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteVenueColumns+` FROM venues v WHERE v.id = ?`, venueID)
	v, err := scanSQLiteVenue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get venue %s", venueID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get venue %s", venueID)
	}
	return &v, nil
}

func (s *SQLiteStore) UpdateVenueQoE(ctx context.Context, venueID string, score float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE venues SET qoe_score = ?, updated_at = ? WHERE id = ?`,
		score, formatTime(nowUTC()), venueID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update venue qoe %s", venueID)
	}
	return checkRowsAffected(res, "venue", venueID)
}

// SearchCandidates scores text relevance in Go since SQLite has no
// full-text ranking comparable to ts_rank without an FTS extension table.
func (s *SQLiteStore) SearchCandidates(ctx context.Context, q CandidateQuery) ([]model.VenueCandidate, error) {
	limit := q.Max
	if limit <= 0 {
		limit = defaultCandidateLimit
	}

	live, err := s.liveConfidence(ctx, q.LiveFrom, q.LiveTo)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteVenueColumns+` FROM venues v ORDER BY v.id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search candidates")
	}
	defer rows.Close()

	needle := textmatch.Fold(q.Text)
	var out []model.VenueCandidate
	for rows.Next() {
		v, err := scanSQLiteVenue(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		doc := strings.Join(append([]string{v.Name, v.Address, v.City}, v.Tags...), " ")
		rank := textmatch.Relevance(doc, q.Text)
		if rank == 0 && !fuzzyMatch(v, needle) {
			continue
		}
		out = append(out, model.VenueCandidate{Venue: v, TextRank: rank, LiveConfidence: live[v.ID]})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: search candidates rows")
	}

	// Live venues sort ahead of text rank so the cap never drops them.
	sort.SliceStable(out, func(i, j int) bool {
		li, lj := q.isLive(out[i].LiveConfidence), q.isLive(out[j].LiveConfidence)
		if li != lj {
			return li
		}
		return out[i].TextRank > out[j].TextRank
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func fuzzyMatch(v model.Venue, needle string) bool {
	if needle == "" {
		return false
	}
	if strings.Contains(textmatch.Fold(v.Name), needle) {
		return true
	}
	for _, t := range v.Tags {
		if strings.Contains(textmatch.Fold(t), needle) {
			return true
		}
	}
	return false
}

func (s *SQLiteStore) liveConfidence(ctx context.Context, from, to time.Time) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ve.venue_id, MAX(e.confidence_score)
		FROM venue_events ve JOIN events e ON e.id = ve.event_id
		WHERE e.status = 'live' OR (e.status = 'scheduled' AND e.start_time BETWEEN ? AND ?)
		GROUP BY ve.venue_id`,
		formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: live confidence")
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			id   string
			conf float64
		)
		if err := rows.Scan(&id, &conf); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan live confidence")
		}
		out[id] = conf
	}
	return out, eris.Wrap(rows.Err(), "sqlite: live confidence rows")
}

func (s *SQLiteStore) ListLinkedVenueTags(ctx context.Context, from, to time.Time) ([]model.TaggedVenue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.id, v.latitude, v.longitude, v.tags
		FROM venue_events ve
		JOIN events e ON e.id = ve.event_id
		JOIN venues v ON v.id = ve.venue_id
		WHERE e.start_time BETWEEN ? AND ? AND e.status <> 'cancelled'`,
		formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list linked venue tags")
	}
	defer rows.Close()

	var out []model.TaggedVenue
	for rows.Next() {
		var (
			tv   model.TaggedVenue
			tags string
		)
		if err := rows.Scan(&tv.VenueID, &tv.Latitude, &tv.Longitude, &tags); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tagged venue")
		}
		if err := json.Unmarshal([]byte(tags), &tv.Tags); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode tags for venue %s", tv.VenueID)
		}
		out = append(out, tv)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list linked venue tags rows")
}

func (s *SQLiteStore) ListUpcomingEvents(ctx context.Context, from, to time.Time, limit int) ([]model.TrendingEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.title, COALESCE(e.league, ''), COALESCE(e.sport, ''), COALESCE(e.team_a, ''), COALESCE(e.team_b, ''),
			e.start_time, e.status, e.confidence_score, e.last_verified, COALESCE(e.override_reason, ''),
			COUNT(ve.venue_id) AS venue_count
		FROM events e
		LEFT JOIN venue_events ve ON ve.event_id = e.id
		WHERE e.start_time BETWEEN ? AND ? AND e.status <> 'cancelled'
		GROUP BY e.id
		ORDER BY venue_count DESC, e.start_time ASC
		LIMIT ?`,
		formatTime(from), formatTime(to), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list upcoming events")
	}
	defer rows.Close()

	var out []model.TrendingEvent
	for rows.Next() {
		var count int
		e, err := scanSQLiteEvent(rows, &count)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan upcoming event")
		}
		out = append(out, model.TrendingEvent{Event: e, VenueCount: count})
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list upcoming events rows")
}

func (s *SQLiteStore) ListVenuesByTag(ctx context.Context, tag string, verifiedOnly bool) ([]model.Venue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteVenueColumns+` FROM venues v
		WHERE EXISTS (SELECT 1 FROM json_each(v.tags) WHERE json_each.value = ?)
		  AND (? = 0 OR v.is_verified = 1)
		ORDER BY v.qoe_score DESC, v.id`,
		tag, verifiedOnly,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list venues by tag %q", tag)
	}
	defer rows.Close()

	var out []model.Venue
	for rows.Next() {
		v, err := scanSQLiteVenue(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan venue")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list venues by tag rows")
}

func (s *SQLiteStore) RecordTierRun(ctx context.Context, run model.TierRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tier_runs (id, tier, success, selected, processed, failed, overrides, message, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Tier), run.Success, run.Selected, run.Processed, run.Failed, run.Overrides,
		run.Message, formatTime(run.StartedAt), formatTime(run.CompletedAt),
	)
	return eris.Wrapf(err, "sqlite: record tier run %s", run.ID)
}

func (s *SQLiteStore) ListTierRuns(ctx context.Context, tier model.Tier, limit int) ([]model.TierRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tier, success, selected, processed, failed, overrides, message, started_at, completed_at
		FROM tier_runs WHERE (? = '' OR tier = ?)
		ORDER BY started_at DESC LIMIT ?`,
		string(tier), string(tier), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tier runs")
	}
	defer rows.Close()

	var out []model.TierRun
	for rows.Next() {
		var (
			r                 model.TierRun
			t, started, ended string
		)
		if err := rows.Scan(&r.ID, &t, &r.Success, &r.Selected, &r.Processed, &r.Failed, &r.Overrides,
			&r.Message, &started, &ended); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tier run")
		}
		r.Tier = model.Tier(t)
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.CompletedAt, err = parseTime(ended); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list tier runs rows")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}
