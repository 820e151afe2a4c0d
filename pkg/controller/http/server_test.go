package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	server "github.com/m-mizutani/hauler/pkg/controller/http"
	"github.com/m-mizutani/hauler/pkg/domain/model"
)

type stubSource struct {
	snap *model.Progress
}

func (x *stubSource) Snapshot() *model.Progress {
	return x.snap
}

func newTestServer(t *testing.T, src *stubSource) *httptest.Server {
	t.Helper()
	srv := gt.R1(server.NewServer(context.Background(), src)).NoError(t)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, &stubSource{})

	resp := gt.R1(http.Get(ts.URL + "/health")).NoError(t)
	defer resp.Body.Close()
	gt.Number(t, resp.StatusCode).Equal(http.StatusOK)
	gt.Value(t, resp.Header.Get("Content-Type")).Equal("application/json")

	var health model.HealthStatus
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	gt.Value(t, health.Status).Equal("healthy")
	gt.Value(t, health.Service).Equal("hauler")
}

func TestStatusEndpoint(t *testing.T) {
	t.Run("returns the progress snapshot", func(t *testing.T) {
		src := &stubSource{snap: &model.Progress{
			ID:       "abc-123",
			State:    model.StateRunning,
			Filename: "file.bin",
			Total:    1000,
			Done:     250,
			Percent:  25,
			Rate:     125,
			ETA:      6,
			Segments: []model.SegmentProgress{
				{Index: 0, Done: 250, Length: 500},
				{Index: 1, Done: 0, Length: 500},
			},
		}}
		ts := newTestServer(t, src)

		resp := gt.R1(http.Get(ts.URL + "/status")).NoError(t)
		defer resp.Body.Close()
		gt.Number(t, resp.StatusCode).Equal(http.StatusOK)

		var got model.Progress
		gt.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		gt.Value(t, got.ID).Equal("abc-123")
		gt.Value(t, got.State).Equal(model.StateRunning)
		gt.Value(t, got.Done).Equal(int64(250))
		gt.Number(t, len(got.Segments)).Equal(2)
	})

	t.Run("no snapshot yields service unavailable", func(t *testing.T) {
		ts := newTestServer(t, &stubSource{})

		resp := gt.R1(http.Get(ts.URL + "/status")).NoError(t)
		defer resp.Body.Close()
		gt.Number(t, resp.StatusCode).Equal(http.StatusServiceUnavailable)
	})
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, &stubSource{})

	resp := gt.R1(http.Get(ts.URL + "/nope")).NoError(t)
	defer resp.Body.Close()
	gt.Number(t, resp.StatusCode).Equal(http.StatusNotFound)
}
