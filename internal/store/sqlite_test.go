package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosport/venue-signal/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var testNow = time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

// seedFixture loads two venues, three events and their links.
func seedFixture(t *testing.T, st *SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	for _, v := range []model.Venue{
		{ID: "ven-kop", Name: "The Kop Bar", Address: "1 Anfield Rd", City: "Liverpool",
			Latitude: 53.43, Longitude: -2.96, QoEScore: 0.6, Tags: []string{"sports bar", "big screen"}, Verified: true},
		{ID: "ven-quiet", Name: "Quiet Corner", City: "Manchester",
			Latitude: 53.48, Longitude: -2.24, QoEScore: 0.9, Tags: []string{"cafe"}},
	} {
		require.NoError(t, st.UpsertVenue(ctx, v))
	}
	for _, e := range []model.Event{
		{ID: "evt-live", Title: "Liverpool v Arsenal", StartTime: testNow.Add(-30 * time.Minute), Status: model.EventStatusLive, ConfidenceScore: 0.95},
		{ID: "evt-soon", Title: "Everton v Leeds", StartTime: testNow.Add(10 * time.Hour)},
		{ID: "evt-off", Title: "Cancelled Cup", StartTime: testNow.Add(24 * time.Hour), Status: model.EventStatusCancelled},
	} {
		require.NoError(t, st.UpsertEvent(ctx, e))
	}
	for _, l := range []model.VenueLink{
		{VenueID: "ven-kop", EventID: "evt-live", Status: model.LinkStatusConfirmed},
		{VenueID: "ven-kop", EventID: "evt-soon"},
		{VenueID: "ven-quiet", EventID: "evt-soon"},
		{VenueID: "ven-quiet", EventID: "evt-off"},
	} {
		require.NoError(t, st.UpsertLink(ctx, l))
	}
}

func TestSQLite_ListEventsByStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedFixture(t, st)

	events, err := st.ListEventsByStatus(context.Background(), model.ActiveEventStatuses)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt-live", events[0].ID)
	assert.Equal(t, "evt-soon", events[1].ID)
	assert.Equal(t, time.UTC, events[0].StartTime.Location())
	assert.Equal(t, testNow.Add(-30*time.Minute), events[0].StartTime)
}

func TestSQLite_ListEventsByStatus_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	events, err := st.ListEventsByStatus(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSQLite_ListVenueLinks(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedFixture(t, st)

	links, err := st.ListVenueLinks(context.Background(), "evt-soon")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "ven-kop", links[0].VenueID)
	assert.Equal(t, model.LinkStatusPredicted, links[0].Status)
	assert.Nil(t, links[0].SocialConfirmedAt)
}

func TestSQLite_UpdateEventConfidence(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedFixture(t, st)
	ctx := context.Background()

	require.NoError(t, st.UpdateEventConfidence(ctx, "evt-soon", 0.85, testNow))

	e, err := st.GetEvent(ctx, "evt-soon")
	require.NoError(t, err)
	assert.InDelta(t, 0.85, e.ConfidenceScore, 1e-9)
	require.NotNil(t, e.LastVerified)
	assert.Equal(t, testNow, *e.LastVerified)

	err = st.UpdateEventConfidence(ctx, "nope", 0.1, testNow)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_CancelEvent(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedFixture(t, st)
	ctx := context.Background()

	require.NoError(t, st.CancelEvent(ctx, "evt-live", "Venue reported unavailable"))

	e, err := st.GetEvent(ctx, "evt-live")
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusCancelled, e.Status)
	assert.Equal(t, "Venue reported unavailable", e.OverrideReason)

	events, err := st.ListEventsByStatus(ctx, model.ActiveEventStatuses)
	require.NoError(t, err)
	for _, ev := range events {
		assert.NotEqual(t, "evt-live", ev.ID)
	}
}

func TestSQLite_CancelEvent_TerminalUntouched(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedFixture(t, st)
	ctx := context.Background()

	require.NoError(t, st.UpsertEvent(ctx, model.Event{ID: "evt-done", Title: "Done", StartTime: testNow.Add(-6 * time.Hour), Status: model.EventStatusFinished}))
	require.NoError(t, st.CancelEvent(ctx, "evt-done", "late report"))

	e, err := st.GetEvent(ctx, "evt-done")
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusFinished, e.Status)
	assert.Empty(t, e.OverrideReason)

	assert.True(t, errors.Is(st.CancelEvent(ctx, "missing", "x"), ErrNotFound))
}

func TestSQLite_MarkSocialConfirmed(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedFixture(t, st)
	ctx := context.Background()

	require.NoError(t, st.MarkSocialConfirmed(ctx, "ven-quiet", "evt-soon", testNow))

	links, err := st.ListVenueLinks(ctx, "evt-soon")
	require.NoError(t, err)
	require.Len(t, links, 2)
	require.NotNil(t, links[1].SocialConfirmedAt)
	assert.Equal(t, testNow, *links[1].SocialConfirmedAt)

	assert.True(t, errors.Is(st.MarkSocialConfirmed(ctx, "ven-quiet", "evt-live", testNow), ErrNotFound))
}

func TestSQLite_UpdateVenueQoE(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedFixture(t, st)
	ctx := context.Background()

	require.NoError(t, st.UpdateVenueQoE(ctx, "ven-kop", 0.75))
	v, err := st.GetVenue(ctx, "ven-kop")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, v.QoEScore, 1e-9)
	assert.Equal(t, []string{"sports bar", "big screen"}, v.Tags)
	assert.True(t, v.Verified)

	_, err = st.GetVenue(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_SearchCandidates(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedFixture(t, st)
	from, to := testNow.Add(-3*time.Hour), testNow.Add(2*time.Hour)

	got, err := st.SearchCandidates(context.Background(), CandidateQuery{Text: "liverpool", LiveFrom: from, LiveTo: to})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ven-kop", got[0].ID)
	assert.InDelta(t, 1.0, got[0].TextRank, 1e-9)
	assert.InDelta(t, 0.95, got[0].LiveConfidence, 1e-9)
}

func TestSQLite_SearchCandidates_TagSubstring(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedFixture(t, st)

	got, err := st.SearchCandidates(context.Background(), CandidateQuery{Text: "caf", LiveFrom: testNow, LiveTo: testNow})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ven-quiet", got[0].ID)
	assert.Zero(t, got[0].TextRank)
	assert.Zero(t, got[0].LiveConfidence)
}

func TestSQLite_SearchCandidates_TagsCountTowardRank(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertVenue(ctx, model.Venue{
		ID: "ven-reds", Name: "The Reds", City: "Manchester", Tags: []string{"liverpool fans"},
	}))

	got, err := st.SearchCandidates(ctx, CandidateQuery{Text: "liverpool", LiveFrom: testNow, LiveTo: testNow})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ven-reds", got[0].ID)
	assert.InDelta(t, 1.0, got[0].TextRank, 1e-9)
}

func TestSQLite_SearchCandidates_LiveVenueSurvivesCap(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	for i := range 120 {
		require.NoError(t, st.UpsertVenue(ctx, model.Venue{
			ID:   fmt.Sprintf("ven-bar-%03d", i),
			Name: fmt.Sprintf("Liverpool Bar %03d", i),
			City: "Liverpool",
		}))
	}
	// Matches only as a tag substring, so its text rank is zero.
	require.NoError(t, st.UpsertVenue(ctx, model.Venue{
		ID: "ven-reds", Name: "The Reds", City: "Bootle", Tags: []string{"liverpoolfc supporters"},
	}))
	require.NoError(t, st.UpsertEvent(ctx, model.Event{
		ID: "evt-derby", Title: "Merseyside Derby", StartTime: testNow.Add(-time.Hour),
		Status: model.EventStatusLive, ConfidenceScore: 0.95,
	}))
	require.NoError(t, st.UpsertLink(ctx, model.VenueLink{VenueID: "ven-reds", EventID: "evt-derby", Status: model.LinkStatusConfirmed}))

	got, err := st.SearchCandidates(ctx, CandidateQuery{
		Text: "liverpool", LiveFrom: testNow.Add(-3 * time.Hour), LiveTo: testNow.Add(2 * time.Hour), Max: 100,
	})
	require.NoError(t, err)
	require.Len(t, got, 100)
	assert.Equal(t, "ven-reds", got[0].ID)
	assert.Zero(t, got[0].TextRank)
	assert.InDelta(t, 0.95, got[0].LiveConfidence, 1e-9)
	assert.Equal(t, "ven-bar-000", got[1].ID)

	// Below the threshold it competes on text rank alone and is cut.
	got, err = st.SearchCandidates(ctx, CandidateQuery{
		Text: "liverpool", LiveFrom: testNow.Add(-3 * time.Hour), LiveTo: testNow.Add(2 * time.Hour),
		LiveThreshold: 0.99, Max: 100,
	})
	require.NoError(t, err)
	require.Len(t, got, 100)
	for _, c := range got {
		assert.NotEqual(t, "ven-reds", c.ID)
	}
}

func TestSQLite_ListLinkedVenueTags(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedFixture(t, st)

	got, err := st.ListLinkedVenueTags(context.Background(), testNow, testNow.Add(7*24*time.Hour))
	require.NoError(t, err)
	// evt-live started before the window and evt-off is cancelled.
	require.Len(t, got, 2)
	ids := []string{got[0].VenueID, got[1].VenueID}
	assert.ElementsMatch(t, []string{"ven-kop", "ven-quiet"}, ids)
}

func TestSQLite_ListUpcomingEvents(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedFixture(t, st)

	got, err := st.ListUpcomingEvents(context.Background(), testNow.Add(-time.Hour), testNow.Add(7*24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "evt-soon", got[0].ID)
	assert.Equal(t, 2, got[0].VenueCount)
	assert.Equal(t, "evt-live", got[1].ID)
	assert.Equal(t, 1, got[1].VenueCount)
}

func TestSQLite_ListVenuesByTag(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedFixture(t, st)
	ctx := context.Background()

	got, err := st.ListVenuesByTag(ctx, "sports bar", true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ven-kop", got[0].ID)

	got, err = st.ListVenuesByTag(ctx, "cafe", true)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = st.ListVenuesByTag(ctx, "cafe", false)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLite_TierRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i, tier := range []model.Tier{model.TierHot, model.TierWarm, model.TierHot} {
		start := testNow.Add(time.Duration(i) * time.Minute)
		require.NoError(t, st.RecordTierRun(ctx, model.TierRun{
			Tier: tier, Success: true, Selected: i, Processed: i,
			StartedAt: start, CompletedAt: start.Add(time.Second),
		}))
	}

	hot, err := st.ListTierRuns(ctx, model.TierHot, 10)
	require.NoError(t, err)
	require.Len(t, hot, 2)
	assert.Equal(t, 2, hot[0].Selected)
	assert.True(t, hot[0].Success)
	assert.Equal(t, time.Second, hot[0].Duration())
	assert.NotEmpty(t, hot[0].ID)

	all, err := st.ListTierRuns(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestParseTime_NaiveIsUTC(t *testing.T) {
	got, err := parseTime("2026-03-01 15:00:00")
	require.NoError(t, err)
	assert.Equal(t, testNow, got)

	_, err = parseTime("yesterday")
	assert.Error(t, err)
}
