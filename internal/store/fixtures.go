package store

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/mosport/venue-signal/internal/model"
)

// Fixtures is a YAML document of reference data for local runs:
//
//	venues:
//	  - {id: ven-kop, name: The Kop Bar, lat: 53.43, lon: -2.96, tags: [sports bar]}
//	events:
//	  - {id: evt-1, title: Liverpool v Arsenal, start: 2026-03-01T20:00:00Z}
//	links:
//	  - {venue: ven-kop, event: evt-1, status: confirmed}
type Fixtures struct {
	Venues []VenueFixture `yaml:"venues"`
	Events []EventFixture `yaml:"events"`
	Links  []LinkFixture  `yaml:"links"`
}

// VenueFixture is one venue row.
type VenueFixture struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Slug     string   `yaml:"slug"`
	Address  string   `yaml:"address"`
	City     string   `yaml:"city"`
	Lat      float64  `yaml:"lat"`
	Lon      float64  `yaml:"lon"`
	QoE      float64  `yaml:"qoe"`
	Tags     []string `yaml:"tags"`
	Verified bool     `yaml:"verified"`
}

// EventFixture is one event row. Start is RFC 3339.
type EventFixture struct {
	ID     string    `yaml:"id"`
	Title  string    `yaml:"title"`
	League string    `yaml:"league"`
	Sport  string    `yaml:"sport"`
	TeamA  string    `yaml:"team_a"`
	TeamB  string    `yaml:"team_b"`
	Start  time.Time `yaml:"start"`
	Status string    `yaml:"status"`
}

// LinkFixture ties a venue to an event.
type LinkFixture struct {
	Venue  string `yaml:"venue"`
	Event  string `yaml:"event"`
	Status string `yaml:"status"`
}

// LoadFixtures reads and validates a fixtures file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read fixtures %s", path)
	}
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "store: parse fixtures %s", path)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixtures) validate() error {
	venues := make(map[string]bool, len(f.Venues))
	for _, v := range f.Venues {
		if v.ID == "" || v.Name == "" {
			return eris.New("store: fixture venue needs id and name")
		}
		venues[v.ID] = true
	}
	events := make(map[string]bool, len(f.Events))
	for _, e := range f.Events {
		if e.ID == "" || e.Title == "" || e.Start.IsZero() {
			return eris.Errorf("store: fixture event %q needs id, title and start", e.ID)
		}
		events[e.ID] = true
	}
	for _, l := range f.Links {
		if !venues[l.Venue] || !events[l.Event] {
			return eris.Errorf("store: fixture link %s/%s references an unknown venue or event", l.Venue, l.Event)
		}
	}
	return nil
}

// Apply upserts every fixture, venues and events before links.
func (f *Fixtures) Apply(ctx context.Context, s Seeder) error {
	for _, v := range f.Venues {
		if err := s.UpsertVenue(ctx, model.Venue{
			ID: v.ID, Name: v.Name, Slug: v.Slug, Address: v.Address, City: v.City,
			Latitude: v.Lat, Longitude: v.Lon, QoEScore: v.QoE, Tags: v.Tags, Verified: v.Verified,
		}); err != nil {
			return eris.Wrapf(err, "store: seed venue %s", v.ID)
		}
	}
	for _, e := range f.Events {
		if err := s.UpsertEvent(ctx, model.Event{
			ID: e.ID, Title: e.Title, League: e.League, Sport: e.Sport, TeamA: e.TeamA, TeamB: e.TeamB,
			StartTime: e.Start.UTC(), Status: model.EventStatus(e.Status),
		}); err != nil {
			return eris.Wrapf(err, "store: seed event %s", e.ID)
		}
	}
	for _, l := range f.Links {
		if err := s.UpsertLink(ctx, model.VenueLink{
			VenueID: l.Venue, EventID: l.Event, Status: model.LinkStatus(l.Status),
		}); err != nil {
			return eris.Wrapf(err, "store: seed link %s/%s", l.Venue, l.Event)
		}
	}
	return nil
}
