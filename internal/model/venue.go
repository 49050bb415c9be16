package model

// Venue is a physical location that may broadcast events. QoEScore is the
// normalized (0.0-1.0) derivative experience score.
type Venue struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Slug      string   `json:"slug,omitempty"`
	Address   string   `json:"address,omitempty"`
	City      string   `json:"city,omitempty"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	QoEScore  float64  `json:"qoe_score"`
	Tags      []string `json:"tags,omitempty"`
	Verified  bool     `json:"verified"`
}

// VenueCandidate is a venue matched by a text query, together with the
// signals the ranking engine needs.
type VenueCandidate struct {
	Venue
	// TextRank is the normalized text-match statistic in [0,1].
	TextRank float64
	// LiveConfidence is the highest confidence among the venue's linked
	// events that are currently inside the live window.
	LiveConfidence float64
}

// TaggedVenue pairs a venue's tags with its location for trending
// aggregation.
type TaggedVenue struct {
	VenueID   string
	Latitude  float64
	Longitude float64
	Tags      []string
}
