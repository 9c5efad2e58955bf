// Package geo holds the geographic data model: branded coordinates, the
// GeoJSON wire format, the normalized feature model and their validators.
package geo

import (
	"fmt"
	"math"

	json "github.com/goccy/go-json"

	"github.com/woozymasta/geoguard/internal/geoerr"
)

// Longitude in degrees, [-180, 180].
type Longitude float64

// Latitude in degrees, [-90, 90].
type Latitude float64

// Coordinates is a longitude/latitude pair.
type Coordinates struct {
	Lon Longitude
	Lat Latitude
}

// NewLongitude validates v as a longitude.
func NewLongitude(v float64) (Longitude, error) {
	if !IsValidLongitude(v) {
		return 0, geoerr.New(geoerr.KindValidation, "",
			geoerr.WithReason("longitude_out_of_range"),
			geoerr.WithMessage("longitude %v outside [-180, 180]", v))
	}

	return Longitude(v), nil
}

// NewLatitude validates v as a latitude.
func NewLatitude(v float64) (Latitude, error) {
	if !IsValidLatitude(v) {
		return 0, geoerr.New(geoerr.KindValidation, "",
			geoerr.WithReason("latitude_out_of_range"),
			geoerr.WithMessage("latitude %v outside [-90, 90]", v))
	}

	return Latitude(v), nil
}

// NewCoordinates validates a lon/lat pair.
func NewCoordinates(lon, lat float64) (Coordinates, error) {
	lo, err := NewLongitude(lon)
	if err != nil {
		return Coordinates{}, err
	}
	la, err := NewLatitude(lat)
	if err != nil {
		return Coordinates{}, err
	}

	return Coordinates{Lon: lo, Lat: la}, nil
}

// MustCoordinates is NewCoordinates for literals known to be valid.
func MustCoordinates(lon, lat float64) Coordinates {
	c, err := NewCoordinates(lon, lat)
	if err != nil {
		panic(err)
	}

	return c
}

// Valid reports whether both components are in range.
func (c Coordinates) Valid() bool {
	return IsValidLongitude(float64(c.Lon)) && IsValidLatitude(float64(c.Lat))
}

// String formats the pair as "lon,lat".
func (c Coordinates) String() string {
	return fmt.Sprintf("%g,%g", float64(c.Lon), float64(c.Lat))
}

// MarshalJSON encodes the pair as a GeoJSON position.
func (c Coordinates) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{float64(c.Lon), float64(c.Lat)})
}

// UnmarshalJSON decodes a GeoJSON position. Extra dimensions are ignored.
// Range is not checked here: decoding builds the whole shape first and
// ValidateShape then rejects it with the offending feature attached.
func (c *Coordinates) UnmarshalJSON(b []byte) error {
	var pos []float64
	if err := json.Unmarshal(b, &pos); err != nil {
		return err
	}
	if len(pos) < 2 {
		return geoerr.New(geoerr.KindValidation, "",
			geoerr.WithReason("invalid_position"),
			geoerr.WithMessage("position has %d values, want at least 2", len(pos)))
	}
	c.Lon, c.Lat = Longitude(pos[0]), Latitude(pos[1])

	return nil
}

// IsValidLongitude reports whether v is a finite longitude.
func IsValidLongitude(v float64) bool {
	return isFinite(v) && v >= -180 && v <= 180
}

// IsValidLatitude reports whether v is a finite latitude.
func IsValidLatitude(v float64) bool {
	return isFinite(v) && v >= -90 && v <= 90
}

// IsValidCoordinates reports whether pos is a [lon, lat, ...] position in range.
func IsValidCoordinates(pos []float64) bool {
	return len(pos) >= 2 && IsValidLongitude(pos[0]) && IsValidLatitude(pos[1])
}

// IsValidMapDimensions reports whether a render surface is usable.
func IsValidMapDimensions(width, height float64) bool {
	return isFinite(width) && isFinite(height) && width > 0 && height > 0
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
