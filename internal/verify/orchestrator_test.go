package verify

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosport/venue-signal/internal/acquisition"
	"github.com/mosport/venue-signal/internal/analyzer"
	"github.com/mosport/venue-signal/internal/cache"
	"github.com/mosport/venue-signal/internal/model"
	"github.com/mosport/venue-signal/internal/qoe"
	"github.com/mosport/venue-signal/internal/store"
)

var now = time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu         sync.Mutex
	events     []model.Event
	links      map[string][]model.VenueLink
	listErr    error
	linkErr    map[string]error
	confErr    error
	qoeErr     error
	confidence map[string]float64
	confWrites int
	qoe        map[string]float64
	qoeWrites  int
	cancelled  map[string]string
	social     map[string]time.Time
	runs       []model.TierRun
}

func newFakeStore(events ...model.Event) *fakeStore {
	return &fakeStore{
		events:     events,
		links:      make(map[string][]model.VenueLink),
		linkErr:    make(map[string]error),
		confidence: make(map[string]float64),
		qoe:        make(map[string]float64),
		cancelled:  make(map[string]string),
		social:     make(map[string]time.Time),
	}
}

func (f *fakeStore) link(eventID string, venueIDs ...string) {
	for _, v := range venueIDs {
		f.links[eventID] = append(f.links[eventID], model.VenueLink{VenueID: v, EventID: eventID, Status: model.LinkStatusPredicted})
	}
}

func (f *fakeStore) ListEventsByStatus(_ context.Context, statuses []model.EventStatus) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Event
	for _, e := range f.events {
		if _, gone := f.cancelled[e.ID]; gone {
			continue
		}
		for _, s := range statuses {
			if e.Status == s {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListVenueLinks(_ context.Context, eventID string) ([]model.VenueLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.linkErr[eventID]; err != nil {
		return nil, err
	}
	return f.links[eventID], nil
}

func (f *fakeStore) UpdateEventConfidence(_ context.Context, eventID string, c float64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confErr != nil {
		return f.confErr
	}
	f.confidence[eventID] = c
	f.confWrites++
	return nil
}

func (f *fakeStore) CancelEvent(_ context.Context, eventID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled[eventID] = reason
	return nil
}

func (f *fakeStore) MarkSocialConfirmed(_ context.Context, venueID, eventID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.social[venueID+"|"+eventID] = at
	return nil
}

func (f *fakeStore) UpdateVenueQoE(_ context.Context, venueID string, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.qoeErr != nil {
		return f.qoeErr
	}
	f.qoe[venueID] = score
	f.qoeWrites++
	return nil
}

func (f *fakeStore) RecordTierRun(_ context.Context, run model.TierRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

// scriptJudge returns canned analyses keyed by item ID and records the
// order items were judged per venue.
type scriptJudge struct {
	mu      sync.Mutex
	results map[string]model.Analysis
	calls   map[string][]string
	panicOn string
}

func newScriptJudge(results map[string]model.Analysis) *scriptJudge {
	return &scriptJudge{results: results, calls: make(map[string][]string)}
}

func (j *scriptJudge) Analyze(_ context.Context, venueID string, item model.RawSignal) model.Analysis {
	if item.ID == j.panicOn {
		panic("judge exploded")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls[venueID] = append(j.calls[venueID], item.ID)
	if a, ok := j.results[item.ID]; ok {
		return a
	}
	return model.NeutralAnalysis()
}

func items(ids ...string) []model.RawSignal {
	out := make([]model.RawSignal, len(ids))
	for i, id := range ids {
		out[i] = model.RawSignal{ID: id, Text: "post " + id, CapturedAt: now.Add(-time.Duration(i) * time.Minute)}
	}
	return out
}

func hotEvent(id string) model.Event {
	return model.Event{ID: id, Title: "Liverpool v Arsenal", StartTime: now.Add(90 * time.Minute), Status: model.EventStatusScheduled}
}

func newTestOrchestrator(st Store, src acquisition.Source, j Judge, opts ...Option) *Orchestrator {
	fetch := acquisition.NewAcquirer(src, time.Second, nil)
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return New(st, fetch, j, cache.NewMemory(), Config{}, opts...)
}

func TestProcessTier_HotOverrideShortCircuits(t *testing.T) {
	st := newFakeStore(hotEvent("evt-1"))
	st.link("evt-1", "ven-1")
	src := acquisition.Static{"ven-1": items("p1", "p2", "p3")}
	overrideTags := model.Analysis{EventConfidence: 0.9, Override: true, Visual: model.VisualBigScreen, Audio: model.AudioSoundOn}
	judge := newScriptJudge(map[string]model.Analysis{
		"p1": {EventConfidence: 0.2, Visual: model.VisualStandard, Audio: model.AudioNone},
		"p2": overrideTags,
		"p3": {EventConfidence: 0.99, HasLiveEvent: true},
	})

	o := newTestOrchestrator(st, src, judge)
	run, err := o.ProcessTier(context.Background(), model.TierHot)
	require.NoError(t, err)

	assert.Equal(t, []string{"p1", "p2"}, judge.calls["ven-1"], "scan must stop at the override")
	assert.Equal(t, DefaultOverrideReason, st.cancelled["evt-1"])
	assert.InDelta(t, 0.9, st.confidence["evt-1"], 1e-9)

	want := qoe.Normalize(qoe.Score(qoe.TagsFromAnalysis(overrideTags)))
	assert.InDelta(t, want, st.qoe["ven-1"], 1e-9)

	assert.True(t, run.Success)
	assert.Equal(t, 1, run.Selected)
	assert.Equal(t, 1, run.Processed)
	assert.Equal(t, 1, run.Overrides)
	require.Len(t, st.runs, 1)
	assert.Equal(t, model.TierHot, st.runs[0].Tier)
}

func TestProcessTier_HotTakesMaxAcrossVenues(t *testing.T) {
	st := newFakeStore(hotEvent("evt-1"))
	st.link("evt-1", "ven-a", "ven-b", "ven-c")
	src := acquisition.Static{
		"ven-a": items("a1", "a2"),
		"ven-b": items("b1"),
	}
	judge := newScriptJudge(map[string]model.Analysis{
		"a1": {EventConfidence: 0.3},
		"a2": {EventConfidence: 0.4},
		"b1": {EventConfidence: 0.95, HasLiveEvent: true},
	})

	o := newTestOrchestrator(st, src, judge)
	_, err := o.ProcessTier(context.Background(), model.TierHot)
	require.NoError(t, err)

	assert.InDelta(t, 0.95, st.confidence["evt-1"], 1e-9)
	assert.Equal(t, 1, st.confWrites, "event confidence is written once per invocation")
	assert.Equal(t, 2, st.qoeWrites, "venue without signals keeps its score")
	assert.Empty(t, st.cancelled)
}

func TestProcessTier_SelectsOnlyRequestedTier(t *testing.T) {
	st := newFakeStore(
		hotEvent("evt-hot"),
		model.Event{ID: "evt-warm", StartTime: now.Add(10 * time.Hour), Status: model.EventStatusScheduled},
		model.Event{ID: "evt-cool", StartTime: now.Add(72 * time.Hour), Status: model.EventStatusScheduled},
		model.Event{ID: "evt-cold", StartTime: now.Add(30 * 24 * time.Hour), Status: model.EventStatusScheduled},
		model.Event{ID: "evt-live", StartTime: now.Add(-48 * time.Hour), Status: model.EventStatusLive},
		model.Event{ID: "evt-done", StartTime: now, Status: model.EventStatusFinished},
	)
	o := newTestOrchestrator(st, acquisition.Nop{}, newScriptJudge(nil))

	tests := []struct {
		tier model.Tier
		want int
	}{
		{model.TierHot, 2},
		{model.TierWarm, 1},
		{model.TierCool, 1},
		{model.TierCold, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			run, err := o.ProcessTier(context.Background(), tt.tier)
			require.NoError(t, err)
			assert.Equal(t, tt.want, run.Selected)
			assert.Equal(t, tt.want, run.Processed)
		})
	}
}

// A scheduled event that started more than three hours ago was never marked
// finished. It falls to COLD rather than staying HOT.
func TestProcessTier_StaleEventFallsToCold(t *testing.T) {
	stale := model.Event{ID: "evt-stale", StartTime: now.Add(-5 * time.Hour), Status: model.EventStatusScheduled}
	st := newFakeStore(stale)
	o := newTestOrchestrator(st, acquisition.Nop{}, newScriptJudge(nil))

	hot, err := o.ProcessTier(context.Background(), model.TierHot)
	require.NoError(t, err)
	assert.Zero(t, hot.Selected)

	cold, err := o.ProcessTier(context.Background(), model.TierCold)
	require.NoError(t, err)
	assert.Equal(t, 1, cold.Selected)
}

func TestProcessTier_SelectionFailure(t *testing.T) {
	st := newFakeStore()
	st.listErr = errors.New("connection refused")
	o := newTestOrchestrator(st, acquisition.Nop{}, newScriptJudge(nil))

	run, err := o.ProcessTier(context.Background(), model.TierHot)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSelection))
	assert.Contains(t, err.Error(), "connection refused")
	assert.False(t, run.Success)
	assert.Zero(t, run.Processed)
	require.Len(t, st.runs, 1)
	assert.False(t, st.runs[0].Success)

	assert.Error(t, o.JobFor(model.TierHot)(context.Background()))
}

func TestProcessTier_PerEventFailureIsolated(t *testing.T) {
	st := newFakeStore(hotEvent("evt-bad"), hotEvent("evt-good"))
	st.linkErr["evt-bad"] = errors.New("timeout")
	st.link("evt-good", "ven-1")
	src := acquisition.Static{"ven-1": items("p1")}
	judge := newScriptJudge(map[string]model.Analysis{"p1": {EventConfidence: 0.95}})

	o := newTestOrchestrator(st, src, judge)
	run, err := o.ProcessTier(context.Background(), model.TierHot)
	require.NoError(t, err)

	assert.True(t, run.Success)
	assert.Equal(t, 2, run.Selected)
	assert.Equal(t, 1, run.Processed)
	assert.Equal(t, 1, run.Failed)
	assert.InDelta(t, 0.95, st.confidence["evt-good"], 1e-9)
	assert.NoError(t, o.JobFor(model.TierHot)(context.Background()))
}

func TestProcessTier_PersistenceFailureCounted(t *testing.T) {
	st := newFakeStore(hotEvent("evt-1"))
	st.link("evt-1", "ven-1")
	st.confErr = errors.New("serialization failure")
	src := acquisition.Static{"ven-1": items("p1")}
	judge := newScriptJudge(map[string]model.Analysis{"p1": {EventConfidence: 0.95}})

	o := newTestOrchestrator(st, src, judge)
	run, err := o.ProcessTier(context.Background(), model.TierHot)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Failed)
	assert.Zero(t, run.Processed)
	assert.Empty(t, st.confidence)
}

func TestProcessTier_VenueQoEFailureDoesNotFailEvent(t *testing.T) {
	st := newFakeStore(hotEvent("evt-1"))
	st.link("evt-1", "ven-1")
	st.qoeErr = errors.New("constraint violation")
	src := acquisition.Static{"ven-1": items("p1")}
	judge := newScriptJudge(map[string]model.Analysis{"p1": {EventConfidence: 0.95}})

	o := newTestOrchestrator(st, src, judge)
	run, err := o.ProcessTier(context.Background(), model.TierHot)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Processed)
	assert.InDelta(t, 0.95, st.confidence["evt-1"], 1e-9)
}

func TestProcessTier_PanicIsPerEventFailure(t *testing.T) {
	st := newFakeStore(hotEvent("evt-1"), hotEvent("evt-2"))
	st.link("evt-1", "ven-1")
	st.link("evt-2", "ven-2")
	src := acquisition.Static{"ven-1": items("boom"), "ven-2": items("ok")}
	judge := newScriptJudge(map[string]model.Analysis{"ok": {EventConfidence: 0.95}})
	judge.panicOn = "boom"

	o := newTestOrchestrator(st, src, judge)
	run, err := o.ProcessTier(context.Background(), model.TierHot)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Processed)
	assert.Equal(t, 1, run.Failed)
}

func TestProcessTier_IdempotentWithoutNewSignals(t *testing.T) {
	st := newFakeStore(hotEvent("evt-1"))
	st.link("evt-1", "ven-1", "ven-2")
	src := acquisition.Static{"ven-1": items("p1", "p2"), "ven-2": items("q1")}
	judge := newScriptJudge(map[string]model.Analysis{
		"p1": {EventConfidence: 0.95, HasLiveEvent: true, Visual: model.VisualBigScreen},
		"p2": {EventConfidence: 0.1, Audio: model.AudioBackground},
		"q1": {EventConfidence: 0.1},
	})
	o := newTestOrchestrator(st, src, judge)

	_, err := o.ProcessTier(context.Background(), model.TierHot)
	require.NoError(t, err)
	conf := st.confidence["evt-1"]
	scores := map[string]float64{"ven-1": st.qoe["ven-1"], "ven-2": st.qoe["ven-2"]}

	_, err = o.ProcessTier(context.Background(), model.TierHot)
	require.NoError(t, err)
	assert.Equal(t, conf, st.confidence["evt-1"])
	assert.Equal(t, scores["ven-1"], st.qoe["ven-1"])
	assert.Equal(t, scores["ven-2"], st.qoe["ven-2"])
}

func TestProcessTier_NoSignalsWritesNothing(t *testing.T) {
	st := newFakeStore(hotEvent("evt-1"))
	st.link("evt-1", "ven-1")
	o := newTestOrchestrator(st, acquisition.Nop{}, newScriptJudge(nil))

	run, err := o.ProcessTier(context.Background(), model.TierHot)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Processed)
	assert.Zero(t, st.confWrites)
	assert.Zero(t, st.qoeWrites)
	assert.Empty(t, st.cancelled)
}

func TestProcessTier_WarmMarksSocialConfirmation(t *testing.T) {
	ev := model.Event{ID: "evt-1", Title: "Liverpool v Arsenal", StartTime: now.Add(10 * time.Hour), Status: model.EventStatusScheduled}
	st := newFakeStore(ev)
	st.link("evt-1", "ven-title", "ven-keyword", "ven-quiet")
	src := acquisition.Static{
		"ven-title":   {{ID: "t1", Text: "Tonight: liverpool v arsenal, doors at 7", CapturedAt: now}},
		"ven-keyword": {{ID: "k1", Text: "Catch the match with us", CapturedAt: now}},
		"ven-quiet":   {{ID: "q1", Text: "New Liverpool-themed cocktails", CapturedAt: now}},
	}
	judge := newScriptJudge(nil)

	o := newTestOrchestrator(st, src, judge)
	run, err := o.ProcessTier(context.Background(), model.TierWarm)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Processed)

	assert.Contains(t, st.social, "ven-title|evt-1")
	assert.Contains(t, st.social, "ven-keyword|evt-1")
	assert.NotContains(t, st.social, "ven-quiet|evt-1")
	assert.Equal(t, now, st.social["ven-title|evt-1"])
	assert.Zero(t, st.confWrites, "WARM never touches confidence")
	assert.Empty(t, judge.calls)
}

type recordingPredictor struct {
	mu    sync.Mutex
	seen  []string
	fails map[string]bool
}

func (p *recordingPredictor) Predict(_ context.Context, _ model.Tier, ev model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, ev.ID)
	if p.fails[ev.ID] {
		return errors.New("heuristic unavailable")
	}
	return nil
}

func TestProcessTier_CoolUsesPredictor(t *testing.T) {
	st := newFakeStore(
		model.Event{ID: "evt-a", StartTime: now.Add(72 * time.Hour), Status: model.EventStatusScheduled},
		model.Event{ID: "evt-b", StartTime: now.Add(96 * time.Hour), Status: model.EventStatusScheduled},
	)
	p := &recordingPredictor{fails: map[string]bool{"evt-b": true}}
	o := newTestOrchestrator(st, acquisition.Nop{}, newScriptJudge(nil), WithPredictor(p))

	run, err := o.ProcessTier(context.Background(), model.TierCool)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"evt-a", "evt-b"}, p.seen)
	assert.True(t, run.Success)
	assert.Equal(t, 1, run.Processed)
	assert.Equal(t, 1, run.Failed)
}

func TestProcessTier_CancelledContext(t *testing.T) {
	st := newFakeStore(hotEvent("evt-1"))
	o := newTestOrchestrator(st, acquisition.Nop{}, newScriptJudge(nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, err := o.ProcessTier(ctx, model.TierHot)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Failed)
	require.Len(t, st.runs, 1, "run is recorded even after cancellation")
}

// Raw posts reach the expiring cache and never the durable store.
func TestProcessTier_RawSignalGovernance(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "gov.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	require.NoError(t, st.UpsertVenue(ctx, model.Venue{ID: "ven-1", Name: "The Kop Bar", Tags: []string{"sports bar"}}))
	require.NoError(t, st.UpsertEvent(ctx, hotEvent("evt-1")))
	require.NoError(t, st.UpsertLink(ctx, model.VenueLink{VenueID: "ven-1", EventID: "evt-1"}))

	posts := []model.RawSignal{
		{ID: "p1", Text: "SECRET-TEXT-1 Liverpool match LIVE now", ImageRef: "https://img.example/secret-1.jpg", CapturedAt: now},
		{ID: "p2", Text: "SECRET-TEXT-2 big screen and commentary", CapturedAt: now.Add(-time.Minute)},
	}
	mem := cache.NewMemory()
	judge := analyzer.New(analyzer.NewKeywordBackend(analyzer.DefaultLexicon()), mem)
	fetch := acquisition.NewAcquirer(acquisition.Static{"ven-1": posts}, time.Second, nil)
	o := New(st, fetch, judge, mem, Config{}, WithClock(func() time.Time { return now }))

	run, err := o.ProcessTier(ctx, model.TierHot)
	require.NoError(t, err)
	require.Equal(t, 1, run.Processed)

	for _, p := range posts {
		var cached model.RawSignal
		ok, err := cache.GetJSON(ctx, mem, cache.RawSignalKey("ven-1", p.ID), &cached)
		require.NoError(t, err)
		require.True(t, ok, "raw item %s must be cached", p.ID)
		assert.Equal(t, p.Text, cached.Text)
		ttl := mem.TTL(cache.RawSignalKey("ven-1", p.ID))
		assert.Greater(t, ttl, cache.TTLRaw-time.Minute)
		assert.LessOrEqual(t, ttl, cache.TTLRaw)
	}
	var tags model.QoETags
	ok, err := cache.GetJSON(ctx, mem, cache.QoETagsKey("ven-1"), &tags)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.VisualBigScreen, tags.Visual)
	assert.Equal(t, model.AudioSoundOn, tags.Audio)

	ev, err := st.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.95, ev.ConfidenceScore, 1e-9)
	v, err := st.GetVenue(ctx, "ven-1")
	require.NoError(t, err)
	assert.Greater(t, v.QoEScore, 0.0)

	runs, err := st.ListTierRuns(ctx, model.TierHot, 10)
	require.NoError(t, err)
	links, err := st.ListVenueLinks(ctx, "evt-1")
	require.NoError(t, err)

	durable := strings.Join([]string{
		ev.Title, ev.League, ev.Sport, ev.TeamA, ev.TeamB, ev.OverrideReason,
		v.Name, v.Slug, v.Address, v.City, strings.Join(v.Tags, " "),
		runs[0].Message, string(links[0].Status),
	}, "\n")
	assert.NotContains(t, durable, "SECRET-TEXT")
	assert.NotContains(t, durable, "secret-1.jpg")
}

func TestError_Is(t *testing.T) {
	cause := errors.New("disk full")
	err := error(newError(ErrPersistence, "evt-1", cause))
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrSelection))
	assert.Contains(t, err.Error(), "evt-1")
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("ven-1")
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, k.size())
}
