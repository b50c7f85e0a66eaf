// Package table renders station lists as the fixed-width text table printed
// by the prices command.
package table

import (
	"fmt"
	"io"
	"strings"

	"github.com/rubiojr/gaspreis/pkg/api"
)

const (
	nameWidth     = 30
	brandWidth    = 10
	priceWidth    = 8
	distanceWidth = 12
	separatorLen  = 80

	notAvailable = "N/A"
	unknown      = "Unknown"
)

var rowFormat = fmt.Sprintf("%%-%ds %%-%ds %%-%ds %%-%ds %%-%ds %%-%ds\n",
	nameWidth, brandWidth, priceWidth, priceWidth, priceWidth, distanceWidth)

// Render writes the header, the separator and one row per station for the
// first limit stations. A negative limit, or one past the end of the list,
// renders every station.
func Render(w io.Writer, stations []api.Station, limit int) error {
	if _, err := fmt.Fprintf(w, rowFormat, "Name", "Brand", "Diesel", "E5", "E10", "Distance (km)"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", separatorLen)); err != nil {
		return err
	}

	if limit < 0 || limit > len(stations) {
		limit = len(stations)
	}

	for i := range stations[:limit] {
		s := &stations[i]
		_, err := fmt.Fprintf(w, rowFormat,
			truncate(orDefault(s.Name, unknown), nameWidth),
			truncate(orDefault(s.Brand, unknown), brandWidth),
			orDefault(s.Diesel, notAvailable),
			orDefault(s.E5, notAvailable),
			orDefault(s.E10, notAvailable),
			orDefault(s.Dist, notAvailable),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func orDefault(v api.Value, def string) string {
	if !v.Valid() {
		return def
	}
	return v.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
