package discovery

import (
	"math"

	"github.com/ekaty/ekaty-agent/internal/places"
)

// degreesPerMeter approximates one meter of latitude in degrees.
const degreesPerMeter = 0.0000089

// ringOverlap shrinks the ring offset so neighbouring circles overlap.
const ringOverlap = 0.8

// ringAngles are the bearings of the six ring tiles, in degrees.
var ringAngles = [...]float64{0, 60, 120, 180, 240, 300}

// TileCenters returns the seven search centers covering a circle of radius
// meters: center first, then a hexagonal ring. Longitude offsets are scaled
// by 1/cos(latitude) of the center.
func TileCenters(center places.LatLng, radius int) []places.LatLng {
	offset := float64(radius) * degreesPerMeter * ringOverlap
	lngScale := math.Cos(center.Lat * math.Pi / 180)

	points := make([]places.LatLng, 0, len(ringAngles)+1)
	points = append(points, center)
	for _, angle := range ringAngles {
		rad := angle * math.Pi / 180
		points = append(points, places.LatLng{
			Lat: center.Lat + offset*math.Cos(rad),
			Lng: center.Lng + offset*math.Sin(rad)/lngScale,
		})
	}
	return points
}
