package fetch_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hauler/pkg/infra/fetch"
)

func TestWithCookiesFile(t *testing.T) {
	var gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil {
			gotCookie = c.Value
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	host := gt.R1(url.Parse(server.URL)).NoError(t).Hostname()
	expires := time.Now().Add(time.Hour).Unix()
	content := fmt.Sprintf("# Netscape HTTP Cookie File\n\n%s\tFALSE\t/\tFALSE\t%d\tsession\tabc123\nmalformed line\n", host, expires)

	path := filepath.Join(t.TempDir(), "cookies.txt")
	gt.NoError(t, os.WriteFile(path, []byte(content), 0600))

	client := gt.R1(fetch.New(fetch.WithCookiesFile(path))).NoError(t)
	req := gt.R1(client.NewRequest(context.Background(), server.URL+"/page")).NoError(t)
	resp := gt.R1(client.Do(req)).NoError(t)
	resp.Body.Close()

	gt.Value(t, gotCookie).Equal("abc123")
}

func TestWithCookiesFile_Missing(t *testing.T) {
	_, err := fetch.New(fetch.WithCookiesFile(filepath.Join(t.TempDir(), "nope.txt")))
	gt.Error(t, err)
}
