package geocode_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rubiojr/gaspreis/pkg/geocode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockHTTPClient struct {
	calls  int
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.calls++
	return m.doFunc(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestNominatim_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("single match", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, http.MethodGet, req.Method)
				assert.Contains(t, req.URL.String(), "nominatim.openstreetmap.org/search")
				q := req.URL.Query()
				assert.Equal(t, "10115", q.Get("postalcode"))
				assert.Equal(t, "de", q.Get("country"))
				assert.Equal(t, "json", q.Get("format"))
				assert.Equal(t, "1", q.Get("limit"))
				assert.Equal(t, geocode.DefaultUserAgent, req.Header.Get("User-Agent"))
				return jsonResponse(http.StatusOK, `[{"lat":"52.5323","lon":"13.3846","display_name":"10115, Mitte, Berlin"}]`), nil
			},
		}

		g := geocode.New(geocode.WithHTTPClient(mockClient))
		c, err := g.Resolve(ctx, "10115", "de")
		require.NoError(t, err)
		assert.Equal(t, geocode.Coordinate{Latitude: 52.5323, Longitude: 13.3846}, c)
	})

	t.Run("empty result", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `[]`), nil
			},
		}

		g := geocode.New(geocode.WithHTTPClient(mockClient))
		_, err := g.Resolve(ctx, "00000", "de")
		require.Error(t, err)
		assert.ErrorIs(t, err, geocode.ErrNotFound)
		assert.ErrorIs(t, err, geocode.ErrLookupFailed)

		var statusErr *geocode.StatusError
		assert.False(t, errors.As(err, &statusErr))
	})

	t.Run("non-200 status", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusTooManyRequests, `{"error":"Rate limit exceeded"}`), nil
			},
		}

		g := geocode.New(geocode.WithHTTPClient(mockClient))
		_, err := g.Resolve(ctx, "10115", "de")
		require.Error(t, err)
		assert.NotErrorIs(t, err, geocode.ErrNotFound)
		assert.ErrorIs(t, err, geocode.ErrLookupFailed)

		var statusErr *geocode.StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
		assert.Equal(t, 1, mockClient.calls, "no retries")
	})

	t.Run("invalid JSON", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `invalid json`), nil
			},
		}

		g := geocode.New(geocode.WithHTTPClient(mockClient))
		_, err := g.Resolve(ctx, "10115", "de")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error decoding nominatim response")
	})

	t.Run("invalid latitude", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `[{"lat":"north","lon":"13.40"}]`), nil
			},
		}

		g := geocode.New(geocode.WithHTTPClient(mockClient))
		_, err := g.Resolve(ctx, "10115", "de")
		require.Error(t, err)
		assert.ErrorIs(t, err, geocode.ErrInvalidCoordinates)
	})

	t.Run("transport error", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return nil, errors.New("connection refused")
			},
		}

		g := geocode.New(geocode.WithHTTPClient(mockClient))
		_, err := g.Resolve(ctx, "10115", "de")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("repeated lookups are cached", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `[{"lat":"48.1374","lon":"11.5755"}]`), nil
			},
		}

		g := geocode.New(geocode.WithHTTPClient(mockClient))
		first, err := g.Resolve(ctx, "80331", "DE")
		require.NoError(t, err)
		second, err := g.Resolve(ctx, "80331", "de")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, mockClient.calls)
	})

	t.Run("not found is not cached", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `[]`), nil
			},
		}

		g := geocode.New(geocode.WithHTTPClient(mockClient))
		_, err := g.Resolve(ctx, "99999", "de")
		require.Error(t, err)
		_, err = g.Resolve(ctx, "99999", "de")
		require.Error(t, err)
		assert.Equal(t, 2, mockClient.calls)
	})
}

func TestNominatim_ResolveWithServer(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/search", r.URL.Path)
		io.WriteString(w, `[{"lat":"52.53","lon":"13.40"}]`)
	}))
	defer srv.Close()

	g := geocode.New(geocode.WithBaseURL(srv.URL + "/search"))
	c, err := g.Resolve(context.Background(), "10115", "de")
	require.NoError(t, err)
	assert.Equal(t, geocode.Coordinate{Latitude: 52.53, Longitude: 13.40}, c)
	assert.Equal(t, int32(1), hits.Load())
}

func TestNominatim_Search(t *testing.T) {
	ctx := context.Background()

	searchServer := func(t *testing.T, body string) *httptest.Server {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, body)
		}))
		t.Cleanup(srv.Close)
		return srv
	}

	t.Run("first result", func(t *testing.T) {
		srv := searchServer(t, `[{"lat":"52.5219","lon":"13.4132","display_name":"Alexanderplatz, Mitte, Berlin"}]`)

		g := geocode.New(geocode.WithServer(srv.URL + "/"))
		p, err := g.Search(ctx, "Alexanderplatz")
		require.NoError(t, err)
		assert.InEpsilon(t, 52.5219, p.Latitude, 0.0001)
		assert.InEpsilon(t, 13.4132, p.Longitude, 0.0001)
	})

	t.Run("empty result", func(t *testing.T) {
		srv := searchServer(t, `[]`)

		g := geocode.New(geocode.WithServer(srv.URL + "/"))
		_, err := g.Search(ctx, "Nowhere at all")
		require.Error(t, err)
		assert.ErrorIs(t, err, geocode.ErrNotFound)
		assert.ErrorIs(t, err, geocode.ErrLookupFailed)
	})
}
