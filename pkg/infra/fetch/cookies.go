package fetch

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hauler/pkg/domain/types"
	"golang.org/x/net/publicsuffix"
)

// loadCookies reads a Netscape cookies.txt file into a cookie jar.
// Each cookie line has 7 tab-separated fields:
// domain, include-subdomains flag, path, secure flag, expires, name, value.
// Malformed lines are skipped.
func loadCookies(path string) (http.CookieJar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open cookies file", goerr.T(types.TagEnvironment), goerr.V("path", path))
	}
	defer file.Close()

	jar, err := cookiejar.New(&cookiejar.Options{
		PublicSuffixList: publicsuffix.List,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create cookie jar")
	}

	s := bufio.NewScanner(file)
	for s.Scan() {
		line := s.Text()
		if line == "" || line[0] == '#' {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			continue
		}

		expires, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			continue
		}

		cookie := http.Cookie{
			Name:    fields[5],
			Value:   fields[6],
			Path:    fields[2],
			Domain:  fields[0],
			Expires: time.Unix(expires, 0),
			Secure:  strings.EqualFold(fields[3], "TRUE"),
		}

		scheme := "http"
		if cookie.Secure {
			scheme = "https"
		}
		host := strings.TrimPrefix(cookie.Domain, ".")
		if host == "" {
			continue
		}

		u, err := url.Parse(fmt.Sprintf("%s://%s/", scheme, host))
		if err != nil {
			continue
		}
		jar.SetCookies(u, []*http.Cookie{&cookie})
	}
	if err := s.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to read cookies file", goerr.T(types.TagEnvironment), goerr.V("path", path))
	}

	return jar, nil
}
