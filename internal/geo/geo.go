// Package geo holds the WGS84 point type used for venues and search
// origins, and great-circle distance on it.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// SRID is the spatial reference for every point (WGS84).
const SRID = 4326

const earthRadiusKM = 6371.0

// ErrOutOfRange is returned for coordinates off the globe.
var ErrOutOfRange = eris.New("geo: coordinate out of range")

// NewPoint builds a point from latitude and longitude in degrees.
func NewPoint(lat, lon float64) (*geom.Point, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, eris.Wrapf(ErrOutOfRange, "lat=%f lon=%f", lat, lon)
	}
	return geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(SRID), nil
}

// MustPoint is NewPoint for literals known to be valid.
func MustPoint(lat, lon float64) *geom.Point {
	p, err := NewPoint(lat, lon)
	if err != nil {
		panic(err)
	}
	return p
}

// LatLon unpacks a point built by NewPoint.
func LatLon(p *geom.Point) (lat, lon float64) {
	return p.Y(), p.X()
}

// DistanceKM is the haversine distance between a and b.
func DistanceKM(a, b *geom.Point) float64 {
	lat1, lon1 := LatLon(a)
	lat2, lon2 := LatLon(b)

	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Within reports whether b lies within radiusKM of a.
func Within(a, b *geom.Point, radiusKM float64) bool {
	return DistanceKM(a, b) <= radiusKM
}

// BoundingBox returns a lat/lon box that contains every point within
// radiusKM of center, for prefiltering in SQL.
func BoundingBox(center *geom.Point, radiusKM float64) (minLat, minLon, maxLat, maxLon float64) {
	lat, lon := LatLon(center)
	dLat := radiusKM / earthRadiusKM * 180 / math.Pi
	cos := math.Cos(radians(lat))
	dLon := 180.0
	if cos > 1e-9 {
		dLon = math.Min(180, dLat/cos)
	}
	return math.Max(-90, lat-dLat), math.Max(-180, lon-dLon),
		math.Min(90, lat+dLat), math.Min(180, lon+dLon)
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
