// Package projection provides a Web Mercator projection for commands and the
// HTTP service. Any prepare.Projection can be used in its place.
package projection

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/woozymasta/geoguard/internal/geo"
	"github.com/woozymasta/geoguard/internal/prepare"
)

// MaxLat is the latitude where the Web Mercator square ends.
const MaxLat = 85.05112878

// Mercator maps lon/lat onto a width x height surface using a forward
// Web Mercator projection.
//
// It maps the longitude range [-180, 180] to [0, width] and the Mercator
// y range [-PI, PI] to [height, 0]. Latitudes beyond MaxLat are unprojectable.
func Mercator(width, height float64) prepare.ProjectionFunc {
	return func(c geo.Coordinates) (r2.Point, bool) {
		lon, lat := float64(c.Lon), float64(c.Lat)
		if lat > MaxLat || lat < -MaxLat {
			return r2.Point{}, false
		}

		// lon: [-180..180] -> x: [0..width]
		x := (lon + 180.0) * (width / 360.0)

		// lat -> mercatorY: [-PI..PI] -> y: [height..0]
		latRad := lat * (math.Pi / 180.0)
		mercatorY := math.Log(math.Tan(math.Pi*0.25 + latRad*0.5))
		y := (math.Pi - mercatorY) * (height / (2.0 * math.Pi))

		return r2.Point{X: x, Y: y}, true
	}
}

// Identity maps lon/lat straight to x/y; useful for planar topologies and tests.
func Identity() prepare.ProjectionFunc {
	return func(c geo.Coordinates) (r2.Point, bool) {
		return r2.Point{X: float64(c.Lon), Y: float64(c.Lat)}, true
	}
}
