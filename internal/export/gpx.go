// Package export writes station lists in formats other tools understand.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/rubiojr/gaspreis/pkg/api"
	"github.com/rubiojr/gaspreis/pkg/geocode"
	"github.com/tkrajina/gpxgo/gpx"
)

const (
	gpxVersion   = "1.1"
	gpxCreator   = "gaspreis"
	metersPerKm  = 1000.0
	waypointType = "Gas Station"
)

// WriteGPX writes one waypoint per station that has coordinates. The origin
// is used to describe each station's distance.
func WriteGPX(w io.Writer, origin geocode.Coordinate, stations []api.Station) error {
	doc := &gpx.GPX{
		Version: gpxVersion,
		Creator: gpxCreator,
		Name:    "Gas stations",
	}

	for i := range stations {
		s := &stations[i]
		lat, lng, ok := s.Location()
		if !ok {
			continue
		}

		distance := gpx.Distance2D(origin.Latitude, origin.Longitude, lat, lng, true)
		doc.Waypoints = append(doc.Waypoints, gpx.GPXPoint{
			Point: gpx.Point{
				Latitude:  lat,
				Longitude: lng,
			},
			Name:        waypointName(s),
			Description: fmt.Sprintf("Diesel: %s, E5: %s, E10: %s, %.2f km away", price(s.Diesel), price(s.E5), price(s.E10), distance/metersPerKm),
			Comment:     address(s),
			Type:        waypointType,
		})
	}

	xml, err := doc.ToXml(gpx.ToXmlParams{Version: gpxVersion, Indent: true})
	if err != nil {
		return fmt.Errorf("error encoding GPX: %w", err)
	}
	if _, err := w.Write(xml); err != nil {
		return fmt.Errorf("error writing GPX: %w", err)
	}
	return nil
}

func waypointName(s *api.Station) string {
	name := s.Name.String()
	brand := s.Brand.String()
	switch {
	case name == "" && brand == "":
		return "Unknown"
	case brand == "" || strings.Contains(strings.ToLower(name), strings.ToLower(brand)):
		return name
	case name == "":
		return brand
	default:
		return brand + " " + name
	}
}

func address(s *api.Station) string {
	street := strings.TrimSpace(s.Street.String() + " " + s.HouseNumber.String())
	place := strings.TrimSpace(s.PostCode.String() + " " + s.Place.String())
	switch {
	case street == "":
		return place
	case place == "":
		return street
	}
	return street + ", " + place
}

func price(v api.Value) string {
	if !v.Valid() {
		return "N/A"
	}
	return v.String()
}
