package fetch

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hauler/pkg/domain/model"
	"github.com/m-mizutani/hauler/pkg/domain/types"
)

var contentRangeRe = regexp.MustCompile(`^bytes \d+-\d+/(\d+)$`)

// Probe inspects a source URL with a HEAD request, falling back to a
// one-byte ranged GET when the server rejects HEAD. Redirects are
// followed and the final URL is reported for subsequent requests.
func (x *Client) Probe(ctx context.Context, rawurl string) (*model.RemoteInfo, error) {
	logger := ctxlog.From(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawurl, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create probe request", goerr.T(types.TagTransfer), goerr.V("url", rawurl))
	}
	x.decorate(req)

	resp, err := x.hc.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "probe request failed", goerr.T(types.TagTransfer), goerr.V("url", rawurl))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		logger.Debug("HEAD rejected, probing with ranged GET",
			slog.Int("status", resp.StatusCode),
			slog.String("url", rawurl),
		)
		return x.probeGet(ctx, rawurl)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("probe returned unexpected status",
			goerr.T(types.TagTransfer), goerr.V("status", resp.StatusCode), goerr.V("url", rawurl))
	}

	info := infoFromResponse(resp)
	info.Size = resp.ContentLength
	info.Rangeable = strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes")
	return info, nil
}

// probeGet asks for the first byte only; a 206 answer proves range
// support and carries the total size in Content-Range.
func (x *Client) probeGet(ctx context.Context, rawurl string) (*model.RemoteInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create probe request", goerr.T(types.TagTransfer), goerr.V("url", rawurl))
	}
	x.decorate(req)
	req.Header.Set("Range", "bytes=0-0")

	resp, err := x.hc.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "probe request failed", goerr.T(types.TagTransfer), goerr.V("url", rawurl))
	}
	defer resp.Body.Close()

	info := infoFromResponse(resp)

	switch resp.StatusCode {
	case http.StatusPartialContent:
		info.Rangeable = true
		info.Size = -1
		if m := contentRangeRe.FindStringSubmatch(resp.Header.Get("Content-Range")); m != nil {
			if size, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				info.Size = size
			}
		}
		return info, nil
	case http.StatusOK:
		info.Size = resp.ContentLength
		return info, nil
	default:
		return nil, goerr.New("probe returned unexpected status",
			goerr.T(types.TagTransfer), goerr.V("status", resp.StatusCode), goerr.V("url", rawurl))
	}
}

func infoFromResponse(resp *http.Response) *model.RemoteInfo {
	info := &model.RemoteInfo{
		Size:         -1,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FinalURL:     resp.Request.URL.String(),
	}
	info.Filename = remoteFilename(resp)
	return info
}

// remoteFilename prefers the Content-Disposition filename, then the
// last element of the final URL path.
func remoteFilename(resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := path.Base(params["filename"]); name != "" && name != "." && name != "/" {
				return name
			}
		}
	}

	name := path.Base(resp.Request.URL.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
