package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/mosport/venue-signal/internal/model"
)

func linkStatus(l model.VenueLink) string {
	if l.Status == "" {
		return string(model.LinkStatusPredicted)
	}
	return string(l.Status)
}

func eventStatus(e model.Event) string {
	if e.Status == "" {
		return string(model.EventStatusScheduled)
	}
	return string(e.Status)
}

func (s *PostgresStore) UpsertVenue(ctx context.Context, v model.Venue) error {
	tags := v.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO venues (id, name, slug, address, city, latitude, longitude, qoe_score, tags, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, slug = EXCLUDED.slug, address = EXCLUDED.address, city = EXCLUDED.city,
			latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude, qoe_score = EXCLUDED.qoe_score,
			tags = EXCLUDED.tags, is_verified = EXCLUDED.is_verified, updated_at = now()`,
		v.ID, v.Name, v.Slug, v.Address, v.City, v.Latitude, v.Longitude, v.QoEScore, tags, v.Verified,
	)
	return eris.Wrapf(err, "postgres: upsert venue %s", v.ID)
}

func (s *PostgresStore) UpsertEvent(ctx context.Context, e model.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, title, league, sport, team_a, team_b, start_time, status, confidence_score, override_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, league = EXCLUDED.league, sport = EXCLUDED.sport,
			team_a = EXCLUDED.team_a, team_b = EXCLUDED.team_b, start_time = EXCLUDED.start_time,
			status = EXCLUDED.status`,
		e.ID, e.Title, e.League, e.Sport, e.TeamA, e.TeamB, e.StartTime.UTC(), eventStatus(e),
		e.ConfidenceScore, e.OverrideReason,
	)
	return eris.Wrapf(err, "postgres: upsert event %s", e.ID)
}

func (s *PostgresStore) UpsertLink(ctx context.Context, l model.VenueLink) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO venue_events (venue_id, event_id, verification_status)
		VALUES ($1, $2, $3)
		ON CONFLICT (venue_id, event_id) DO UPDATE SET verification_status = EXCLUDED.verification_status`,
		l.VenueID, l.EventID, linkStatus(l),
	)
	return eris.Wrapf(err, "postgres: upsert link %s/%s", l.VenueID, l.EventID)
}

func (s *SQLiteStore) UpsertVenue(ctx context.Context, v model.Venue) error {
	tags := v.Tags
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal tags")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO venues (id, name, slug, address, city, latitude, longitude, qoe_score, tags, is_verified, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, slug = excluded.slug, address = excluded.address, city = excluded.city,
			latitude = excluded.latitude, longitude = excluded.longitude, qoe_score = excluded.qoe_score,
			tags = excluded.tags, is_verified = excluded.is_verified, updated_at = excluded.updated_at`,
		v.ID, v.Name, v.Slug, v.Address, v.City, v.Latitude, v.Longitude, v.QoEScore, string(raw), v.Verified,
		formatTime(nowUTC()),
	)
	return eris.Wrapf(err, "sqlite: upsert venue %s", v.ID)
}

func (s *SQLiteStore) UpsertEvent(ctx context.Context, e model.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, title, league, sport, team_a, team_b, start_time, status, confidence_score, override_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''))
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title, league = excluded.league, sport = excluded.sport,
			team_a = excluded.team_a, team_b = excluded.team_b, start_time = excluded.start_time,
			status = excluded.status`,
		e.ID, e.Title, e.League, e.Sport, e.TeamA, e.TeamB, formatTime(e.StartTime), eventStatus(e),
		e.ConfidenceScore, e.OverrideReason,
	)
	return eris.Wrapf(err, "sqlite: upsert event %s", e.ID)
}

func (s *SQLiteStore) UpsertLink(ctx context.Context, l model.VenueLink) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO venue_events (venue_id, event_id, verification_status)
		VALUES (?, ?, ?)
		ON CONFLICT (venue_id, event_id) DO UPDATE SET verification_status = excluded.verification_status`,
		l.VenueID, l.EventID, linkStatus(l),
	)
	return eris.Wrapf(err, "sqlite: upsert link %s/%s", l.VenueID, l.EventID)
}
