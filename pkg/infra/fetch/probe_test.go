package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hauler/pkg/domain/types"
	"github.com/m-mizutani/hauler/pkg/infra/fetch"
)

func TestProbe_Head(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Value(t, r.Method).Equal(http.MethodHead)
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", "12345")
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Wed, 21 Oct 2015 07:28:00 GMT")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := gt.R1(fetch.New()).NoError(t)
	info := gt.R1(client.Probe(context.Background(), server.URL+"/files/data.bin")).NoError(t)

	gt.Value(t, info.Size).Equal(int64(12345))
	gt.True(t, info.Rangeable)
	gt.Value(t, info.ETag).Equal(`"v1"`)
	gt.Value(t, info.LastModified).Equal("Wed, 21 Oct 2015 07:28:00 GMT")
	gt.Value(t, info.Filename).Equal("data.bin")
	gt.Value(t, info.Validator()).Equal(`"v1"`)
}

func TestProbe_HeadRejectedFallsBackToRangedGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gt.Value(t, r.Header.Get("Range")).Equal("bytes=0-0")
		w.Header().Set("Content-Range", "bytes 0-0/9999")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte{0})
	}))
	defer server.Close()

	client := gt.R1(fetch.New()).NoError(t)
	info := gt.R1(client.Probe(context.Background(), server.URL+"/data.bin")).NoError(t)

	gt.Value(t, info.Size).Equal(int64(9999))
	gt.True(t, info.Rangeable)
}

func TestProbe_RangeIgnoredOnFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		w.Header().Set("Content-Length", "5")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer server.Close()

	client := gt.R1(fetch.New()).NoError(t)
	info := gt.R1(client.Probe(context.Background(), server.URL+"/data.bin")).NoError(t)

	gt.Value(t, info.Size).Equal(int64(5))
	gt.False(t, info.Rangeable)
}

func TestProbe_ContentDispositionWins(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="pretty-name.iso"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := gt.R1(fetch.New()).NoError(t)
	info := gt.R1(client.Probe(context.Background(), server.URL+"/ugly-url-name")).NoError(t)

	gt.Value(t, info.Filename).Equal("pretty-name.iso")
}

func TestProbe_FollowsRedirects(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		w.WriteHeader(http.StatusOK)
	}))
	defer final.Close()

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL+"/real/file.bin", http.StatusFound)
	}))
	defer redirector.Close()

	client := gt.R1(fetch.New()).NoError(t)
	info := gt.R1(client.Probe(context.Background(), redirector.URL+"/start")).NoError(t)

	gt.Value(t, info.FinalURL).Equal(final.URL + "/real/file.bin")
	gt.Value(t, info.Filename).Equal("file.bin")
}

func TestProbe_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := gt.R1(fetch.New()).NoError(t)
	_, err := client.Probe(context.Background(), server.URL+"/secret.bin")
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, types.TagTransfer))
}

func TestNew_InvalidHeader(t *testing.T) {
	_, err := fetch.New(fetch.WithHeaders([]string{"no-colon-here"}))
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, types.TagEnvironment))
}

func TestNewRequest_CarriesIdentity(t *testing.T) {
	client := gt.R1(fetch.New(
		fetch.WithUserAgent("hauler-test/1.0"),
		fetch.WithHeaders([]string{"X-Custom: yes", "Authorization: Bearer token"}),
	)).NoError(t)

	req := gt.R1(client.NewRequest(context.Background(), "http://example.com/f")).NoError(t)
	gt.Value(t, req.Header.Get("User-Agent")).Equal("hauler-test/1.0")
	gt.Value(t, req.Header.Get("X-Custom")).Equal("yes")
	gt.Value(t, req.Header.Get("Authorization")).Equal("Bearer token")
}
