package spatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// LatLon is a coordinate pair in degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

// LineString builds an ordered path geometry (lon, lat order).
func LineString(coords []LatLon) orb.LineString {
	ls := make(orb.LineString, 0, len(coords))
	for _, c := range coords {
		ls = append(ls, orb.Point{c.Lon, c.Lat})
	}
	return ls
}

// PathWKT renders coordinates as a LINESTRING WKT.
func PathWKT(coords []LatLon) string {
	return wkt.MarshalString(LineString(coords))
}
