package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCDN serves /videos/source.mp4 and answers everything else with status
func newCDN(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos/source.mp4" {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		if r.Method == http.MethodGet {
			_, _ = io.WriteString(w, "source-video")
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPStorage_Get(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		path     string
		code     int
		want     string
		notFound bool
		wantErr  string
	}{
		{name: "source video", path: "/videos/source.mp4", code: http.StatusNotFound, want: "source-video"},
		{name: "missing", path: "/videos/other.mp4", code: http.StatusNotFound, notFound: true},
		{name: "server error", path: "/videos/other.mp4", code: http.StatusBadGateway, wantErr: "status 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newCDN(t, tt.code)
			hs := NewHTTPStorage(WithHTTPClient(srv.Client()))

			rc, err := hs.Get(ctx, srv.URL+tt.path)
			switch {
			case tt.notFound:
				assert.ErrorIs(t, err, ErrNotFound)
				assert.Nil(t, rc)
			case tt.wantErr != "":
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrNotFound)
				assert.Contains(t, err.Error(), tt.wantErr)
			default:
				require.NoError(t, err)
				defer rc.Close()
				data, err := io.ReadAll(rc)
				require.NoError(t, err)
				assert.Equal(t, tt.want, string(data))
			}
		})
	}
}

func TestHTTPStorage_Exists(t *testing.T) {
	srv := newCDN(t, http.StatusNotFound)
	hs := NewHTTPStorage(WithHTTPClient(srv.Client()))
	ctx := context.Background()

	ok, err := hs.Exists(ctx, srv.URL+"/videos/source.mp4")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hs.Exists(ctx, srv.URL+"/videos/other.mp4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPStorage_ReadOnly(t *testing.T) {
	hs := NewHTTPStorage()
	ctx := context.Background()

	assert.Error(t, hs.Put(ctx, "https://cdn.example.com/out.mp4", strings.NewReader("x")))
	assert.Error(t, hs.Delete(ctx, "https://cdn.example.com/out.mp4"))
}

func TestHTTPStorage_RejectsOtherSchemes(t *testing.T) {
	_, err := NewHTTPStorage().Get(context.Background(), "file:///etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only supports http")
}

func TestHTTPStorage_Guard(t *testing.T) {
	errBlocked := errors.New("blocked")
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	hs := NewHTTPStorage(WithHTTPClient(srv.Client()), WithURLGuard(func(uri string) error {
		if strings.Contains(uri, "/latest") {
			return errBlocked
		}
		return nil
	}))
	ctx := context.Background()

	_, err := hs.Get(ctx, srv.URL+"/latest/meta-data")
	assert.ErrorIs(t, err, errBlocked)
	_, err = hs.Exists(ctx, srv.URL+"/latest/meta-data")
	assert.ErrorIs(t, err, errBlocked)
	assert.Zero(t, requests.Load())

	ok, err := hs.Exists(ctx, srv.URL+"/videos/source.mp4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), requests.Load())
}
