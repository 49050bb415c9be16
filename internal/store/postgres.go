package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/mosport/venue-signal/internal/db"
	"github.com/mosport/venue-signal/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const pgMigration = `
CREATE TABLE IF NOT EXISTS venues (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	slug          TEXT,
	address       TEXT,
	city          TEXT,
	latitude      DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude     DOUBLE PRECISION NOT NULL DEFAULT 0,
	qoe_score     DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (qoe_score >= 0 AND qoe_score <= 1),
	tags          TEXT[] NOT NULL DEFAULT '{}',
	is_verified   BOOLEAN NOT NULL DEFAULT false,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	search_vector tsvector GENERATED ALWAYS AS (
		to_tsvector('english', coalesce(name, '') || ' ' || coalesce(address, '') || ' ' || coalesce(city, ''))
	) STORED
);

CREATE TABLE IF NOT EXISTS events (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	league           TEXT,
	sport            TEXT,
	team_a           TEXT,
	team_b           TEXT,
	start_time       TIMESTAMPTZ NOT NULL,
	status           TEXT NOT NULL DEFAULT 'scheduled'
	                 CHECK (status IN ('scheduled', 'live', 'finished', 'cancelled')),
	confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (confidence_score >= 0 AND confidence_score <= 1),
	last_verified    TIMESTAMPTZ,
	override_reason  TEXT
);

CREATE TABLE IF NOT EXISTS venue_events (
	venue_id            TEXT NOT NULL REFERENCES venues(id),
	event_id            TEXT NOT NULL REFERENCES events(id),
	verification_status TEXT NOT NULL DEFAULT 'predicted'
	                    CHECK (verification_status IN ('predicted', 'confirmed', 'authority')),
	social_confirmed_at TIMESTAMPTZ,
	PRIMARY KEY (venue_id, event_id)
);

CREATE TABLE IF NOT EXISTS tier_runs (
	id           TEXT PRIMARY KEY,
	tier         TEXT NOT NULL,
	success      BOOLEAN NOT NULL,
	selected     INTEGER NOT NULL DEFAULT 0,
	processed    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	overrides    INTEGER NOT NULL DEFAULT 0,
	message      TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_status_start ON events(status, start_time);
CREATE INDEX IF NOT EXISTS idx_venue_events_event ON venue_events(event_id);
CREATE INDEX IF NOT EXISTS idx_venues_search ON venues USING GIN (search_vector);
CREATE INDEX IF NOT EXISTS idx_venues_tags ON venues USING GIN (tags);
CREATE INDEX IF NOT EXISTS idx_tier_runs_tier_started ON tier_runs(tier, started_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, pgMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const pgEventColumns = `id, title, COALESCE(league, ''), COALESCE(sport, ''), COALESCE(team_a, ''), COALESCE(team_b, ''),
	start_time, status, confidence_score, last_verified, COALESCE(override_reason, '')`

const pgVenueColumns = `v.id, v.name, COALESCE(v.slug, ''), COALESCE(v.address, ''), COALESCE(v.city, ''),
	v.latitude, v.longitude, v.qoe_score, v.tags, v.is_verified`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPgEvent(row rowScanner, extra ...any) (model.Event, error) {
	var (
		e      model.Event
		status string
	)
	dest := []any{&e.ID, &e.Title, &e.League, &e.Sport, &e.TeamA, &e.TeamB,
		&e.StartTime, &status, &e.ConfidenceScore, &e.LastVerified, &e.OverrideReason}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return e, err
	}
	e.Status = model.EventStatus(status)
	e.StartTime = e.StartTime.UTC()
	if e.LastVerified != nil {
		t := e.LastVerified.UTC()
		e.LastVerified = &t
	}
	return e, nil
}

func scanPgVenue(row rowScanner, extra ...any) (model.Venue, error) {
	var v model.Venue
	dest := []any{&v.ID, &v.Name, &v.Slug, &v.Address, &v.City,
		&v.Latitude, &v.Longitude, &v.QoEScore, &v.Tags, &v.Verified}
	err := row.Scan(append(dest, extra...)...)
	return v, err
}

func (s *PostgresStore) ListEventsByStatus(ctx context.Context, statuses []model.EventStatus) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgEventColumns+` FROM events WHERE status = ANY($1) ORDER BY start_time`,
		statusStrings(statuses),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events by status")
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanPgEvent(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list events by status rows")
}

func (s *PostgresStore) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgEventColumns+` FROM events WHERE id = $1`, eventID)
	e, err := scanPgEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get event %s", eventID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get event %s", eventID)
	}
	return &e, nil
}

func (s *PostgresStore) ListVenueLinks(ctx context.Context, eventID string) ([]model.VenueLink, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT venue_id, event_id, verification_status, social_confirmed_at
		 FROM venue_events WHERE event_id = $1 ORDER BY venue_id`,
		eventID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list venue links %s", eventID)
	}
	defer rows.Close()

	var links []model.VenueLink
	for rows.Next() {
		var (
			l      model.VenueLink
			status string
		)
		if err := rows.Scan(&l.VenueID, &l.EventID, &status, &l.SocialConfirmedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan venue link")
		}
		l.Status = model.LinkStatus(status)
		links = append(links, l)
	}
	return links, eris.Wrap(rows.Err(), "postgres: list venue links rows")
}

func (s *PostgresStore) UpdateEventConfidence(ctx context.Context, eventID string, confidence float64, verifiedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE events SET confidence_score = $1, last_verified = $2 WHERE id = $3`,
		confidence, verifiedAt.UTC(), eventID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update event confidence %s", eventID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update event confidence %s", eventID)
	}
	return nil
}

func (s *PostgresStore) CancelEvent(ctx context.Context, eventID, reason string) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "postgres: cancel event %s", eventID)
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: lock event %s", eventID)
		}
		switch model.EventStatus(status) {
		case model.EventStatusFinished, model.EventStatusCancelled:
			return nil
		}
		if _, err := tx.Exec(ctx,
			`UPDATE events SET status = $1, override_reason = $2 WHERE id = $3`,
			string(model.EventStatusCancelled), reason, eventID,
		); err != nil {
			return eris.Wrapf(err, "postgres: cancel event %s", eventID)
		}
		return nil
	})
}

func (s *PostgresStore) MarkSocialConfirmed(ctx context.Context, venueID, eventID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE venue_events SET social_confirmed_at = $1 WHERE venue_id = $2 AND event_id = $3`,
		at.UTC(), venueID, eventID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark social confirmed %s/%s", venueID, eventID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: mark social confirmed %s/%s", venueID, eventID)
	}
	return nil
}

func (s *PostgresStore) GetVenue(ctx context.Context, venueID string) (*model.Venue, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgVenueColumns+` FROM venues v WHERE v.id = $1`, venueID)
	v, err := scanPgVenue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get venue %s", venueID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get venue %s", venueID)
	}
	return &v, nil
}

func (s *PostgresStore) UpdateVenueQoE(ctx context.Context, venueID string, score float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE venues SET qoe_score = $1, updated_at = $2 WHERE id = $3`,
		score, time.Now().UTC(), venueID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update venue qoe %s", venueID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update venue qoe %s", venueID)
	}
	return nil
}

// likePattern wraps q for a case-insensitive substring match, escaping the
// LIKE wildcards it contains.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

func (s *PostgresStore) SearchCandidates(ctx context.Context, q CandidateQuery) ([]model.VenueCandidate, error) {
	limit := q.Max
	if limit <= 0 {
		limit = defaultCandidateLimit
	}
	// Venues at or above the live threshold sort ahead of text rank so the
	// limit never cuts a live venue that matched only on name or tag.
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgVenueColumns+`,
			COALESCE(ts_rank(v.search_vector || to_tsvector('english', array_to_string(v.tags, ' ')),
				websearch_to_tsquery('english', $1), 32), 0) AS text_rank,
			COALESCE(lc.conf, 0) AS live_confidence
		FROM venues v
		LEFT JOIN LATERAL (
			SELECT MAX(e.confidence_score) AS conf
			FROM venue_events ve JOIN events e ON e.id = ve.event_id
			WHERE ve.venue_id = v.id
			  AND (e.status = 'live' OR (e.status = 'scheduled' AND e.start_time BETWEEN $3 AND $4))
		) lc ON true
		WHERE v.search_vector @@ websearch_to_tsquery('english', $1)
		   OR v.name ILIKE $2
		   OR EXISTS (SELECT 1 FROM unnest(v.tags) AS t(tag) WHERE t.tag ILIKE $2)
		ORDER BY (COALESCE(lc.conf, 0) > 0 AND COALESCE(lc.conf, 0) >= $6) DESC, text_rank DESC, v.id
		LIMIT $5`,
		q.Text, likePattern(q.Text), q.LiveFrom.UTC(), q.LiveTo.UTC(), limit, q.liveThreshold(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search candidates")
	}
	defer rows.Close()

	var out []model.VenueCandidate
	for rows.Next() {
		var c model.VenueCandidate
		v, err := scanPgVenue(rows, &c.TextRank, &c.LiveConfidence)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		c.Venue = v
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: search candidates rows")
}

func (s *PostgresStore) ListLinkedVenueTags(ctx context.Context, from, to time.Time) ([]model.TaggedVenue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT v.id, v.latitude, v.longitude, v.tags
		FROM venue_events ve
		JOIN events e ON e.id = ve.event_id
		JOIN venues v ON v.id = ve.venue_id
		WHERE e.start_time BETWEEN $1 AND $2 AND e.status <> 'cancelled'`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list linked venue tags")
	}
	defer rows.Close()

	var out []model.TaggedVenue
	for rows.Next() {
		var tv model.TaggedVenue
		if err := rows.Scan(&tv.VenueID, &tv.Latitude, &tv.Longitude, &tv.Tags); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tagged venue")
		}
		out = append(out, tv)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list linked venue tags rows")
}

func (s *PostgresStore) ListUpcomingEvents(ctx context.Context, from, to time.Time, limit int) ([]model.TrendingEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT e.id, e.title, COALESCE(e.league, ''), COALESCE(e.sport, ''), COALESCE(e.team_a, ''), COALESCE(e.team_b, ''),
			e.start_time, e.status, e.confidence_score, e.last_verified, COALESCE(e.override_reason, ''),
			COUNT(ve.venue_id) AS venue_count
		FROM events e
		LEFT JOIN venue_events ve ON ve.event_id = e.id
		WHERE e.start_time BETWEEN $1 AND $2 AND e.status <> 'cancelled'
		GROUP BY e.id
		ORDER BY venue_count DESC, e.start_time ASC
		LIMIT $3`,
		from.UTC(), to.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list upcoming events")
	}
	defer rows.Close()

	var out []model.TrendingEvent
	for rows.Next() {
		var count int64
		e, err := scanPgEvent(rows, &count)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan upcoming event")
		}
		out = append(out, model.TrendingEvent{Event: e, VenueCount: int(count)})
	}
	return out, eris.Wrap(rows.Err(), "postgres: list upcoming events rows")
}

func (s *PostgresStore) ListVenuesByTag(ctx context.Context, tag string, verifiedOnly bool) ([]model.Venue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgVenueColumns+` FROM venues v
		WHERE $1 = ANY(v.tags) AND ($2 = false OR v.is_verified)
		ORDER BY v.qoe_score DESC, v.id`,
		tag, verifiedOnly,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list venues by tag %q", tag)
	}
	defer rows.Close()

	var out []model.Venue
	for rows.Next() {
		v, err := scanPgVenue(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan venue")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list venues by tag rows")
}

func (s *PostgresStore) RecordTierRun(ctx context.Context, run model.TierRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tier_runs (id, tier, success, selected, processed, failed, overrides, message, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, string(run.Tier), run.Success, run.Selected, run.Processed, run.Failed, run.Overrides,
		run.Message, run.StartedAt.UTC(), run.CompletedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: record tier run %s", run.ID)
}

func (s *PostgresStore) ListTierRuns(ctx context.Context, tier model.Tier, limit int) ([]model.TierRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, tier, success, selected, processed, failed, overrides, message, started_at, completed_at
		FROM tier_runs WHERE ($1 = '' OR tier = $1)
		ORDER BY started_at DESC LIMIT $2`,
		string(tier), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tier runs")
	}
	defer rows.Close()

	var out []model.TierRun
	for rows.Next() {
		var (
			r    model.TierRun
			t    string
			sel  int32
			proc int32
			fail int32
			ovr  int32
		)
		if err := rows.Scan(&r.ID, &t, &r.Success, &sel, &proc, &fail, &ovr, &r.Message, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tier run")
		}
		r.Tier = model.Tier(t)
		r.Selected, r.Processed, r.Failed, r.Overrides = int(sel), int(proc), int(fail), int(ovr)
		r.StartedAt, r.CompletedAt = r.StartedAt.UTC(), r.CompletedAt.UTC()
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list tier runs rows")
}
