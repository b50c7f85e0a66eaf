package pricedb

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const berlinResponse = `{
	"ok": true,
	"status": "ok",
	"stations": [
		{"id": "st-1", "name": "TOTAL BERLIN", "brand": "TOTAL", "lat": 52.53083, "lng": 13.440946,
		 "dist": 1.1, "diesel": 1.659, "e5": 1.789, "e10": 1.729},
		{"id": "st-2", "name": "Aral Tankstelle", "brand": "ARAL", "lat": 52.51164, "lng": 13.42075,
		 "dist": 1.7, "diesel": 1.619, "e5": null, "e10": false},
		{"id": "st-3", "name": "Shell Potsdam", "brand": "Shell", "lat": 52.3906, "lng": 13.0645,
		 "dist": 24.5, "diesel": "1.599", "e5": 1.759, "e10": 1.699}
	]
}`

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(context.Background(), filepath.Join(t.TempDir(), "prices.db"), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func saveBerlin(t *testing.T, s *Storage, at time.Time) int64 {
	t.Helper()
	id, err := s.SaveSearch(context.Background(), Search{
		SearchedAt: at,
		PostalCode: "10115",
		Country:    "de",
		Latitude:   52.53,
		Longitude:  13.40,
		Radius:     25,
		Sort:       "dist",
	}, []byte(berlinResponse))
	require.NoError(t, err)
	return id
}

func TestStorage_SaveSearchExpandsStations(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	id := saveBerlin(t, s, time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC))

	records, err := s.StationPrices(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "st-1", records[0].StationID)
	assert.Equal(t, "TOTAL BERLIN", records[0].Name)
	require.NotNil(t, records[0].Diesel)
	assert.InDelta(t, 1.659, *records[0].Diesel, 1e-9)

	assert.Equal(t, "st-2", records[1].StationID)
	assert.Nil(t, records[1].E5, "null price is not stored")
	assert.Nil(t, records[1].E10, "false price is not stored")

	require.NotNil(t, records[2].Diesel, "quoted price is stored as a number")
	assert.InDelta(t, 1.599, *records[2].Diesel, 1e-9)
}

func TestStorage_Searches(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	first := saveBerlin(t, s, time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC))
	second := saveBerlin(t, s, time.Date(2026, 10, 2, 8, 0, 0, 0, time.UTC))

	searches, err := s.Searches(ctx, 0)
	require.NoError(t, err)
	require.Len(t, searches, 2)
	assert.Equal(t, second, searches[0].ID)
	assert.Equal(t, first, searches[1].ID)
	assert.Equal(t, "10115", searches[0].PostalCode)
	assert.Equal(t, 3, searches[0].Stations)
	assert.True(t, searches[0].SearchedAt.Equal(time.Date(2026, 10, 2, 8, 0, 0, 0, time.UTC)))

	limited, err := s.Searches(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStorage_CheapestPrices(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	saveBerlin(t, s, time.Now())

	records, err := s.CheapestPrices(ctx, "diesel", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "st-3", records[0].StationID)
	assert.Equal(t, "st-2", records[1].StationID)

	records, err = s.CheapestPrices(ctx, "e5", 0)
	require.NoError(t, err)
	require.Len(t, records, 2, "stations without an e5 price are skipped")
	assert.InDelta(t, 1.759, *records[0].Price("e5"), 1e-9)

	_, err = s.CheapestPrices(ctx, "kerosene", 1)
	assert.Error(t, err)
}

func TestStorage_NearbyPrices(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	saveBerlin(t, s, time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC))
	saveBerlin(t, s, time.Date(2026, 10, 2, 8, 0, 0, 0, time.UTC))

	nearby, err := s.NearbyPrices(ctx, 52.53, 13.40, 5000)
	require.NoError(t, err)
	require.Len(t, nearby, 2, "only the latest record per station within range")

	assert.Equal(t, "st-2", nearby[0].StationID)
	assert.Less(t, nearby[0].Distance, nearby[1].Distance)
	for _, r := range nearby {
		assert.LessOrEqual(t, r.Distance, 5000.0)
		assert.True(t, r.SearchedAt.Equal(time.Date(2026, 10, 2, 8, 0, 0, 0, time.UTC)))
	}

	wide, err := s.NearbyPrices(ctx, 52.53, 13.40, 50000)
	require.NoError(t, err)
	assert.Len(t, wide, 3)
}

func TestStorage_DeleteOldSearches(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	old := saveBerlin(t, s, time.Now().AddDate(0, 0, -100))
	saveBerlin(t, s, time.Now())

	n, err := s.DeleteOldSearches(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	searches, err := s.Searches(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, searches, 1)

	records, err := s.StationPrices(ctx, old)
	require.NoError(t, err)
	assert.Empty(t, records, "station rows are removed with their search")
}

func TestStorage_SaveSearchLooseTypes(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	id, err := s.SaveSearch(ctx, Search{PostalCode: "10115", Country: "de", Radius: 5, Sort: "dist"},
		[]byte(`{"ok":true,"stations":[{"id":12,"name":"A","lat":"52.5","lng":{},"diesel":"1.5"}]}`))
	require.NoError(t, err)

	records, err := s.StationPrices(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "12", records[0].StationID)
	assert.InDelta(t, 52.5, records[0].Latitude, 1e-9)
	assert.Zero(t, records[0].Longitude)
	require.NotNil(t, records[0].Diesel)
	assert.InDelta(t, 1.5, *records[0].Diesel, 1e-9)

	nearby, err := s.NearbyPrices(ctx, 52.5, 0, 1000)
	require.NoError(t, err)
	assert.Empty(t, nearby, "stations without both coordinates are skipped")
}
