package model

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hauler/pkg/domain/types"
)

// SourceKind classifies what the user handed to --link
type SourceKind string

const (
	SourceURL     SourceKind = "url"
	SourceMagnet  SourceKind = "magnet"
	SourceTorrent SourceKind = "torrent"
)

// Source is a resolved download input. Whatever the kind, the transfer
// itself always runs over the HTTP(S) URLs listed here: for magnet and
// torrent inputs those are the web seeds.
type Source struct {
	Kind SourceKind
	Raw  string   // the original input as given
	Name string   // display name hint, may be empty
	Size int64    // expected size from torrent metadata, 0 if unknown
	URLs []string // HTTP(S) sources to download from
}

// ClassifyInput maps a raw --link argument to a source kind without
// touching the filesystem or network.
func ClassifyInput(raw string) (SourceKind, error) {
	if strings.HasPrefix(raw, "magnet:") {
		return SourceMagnet, nil
	}

	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		switch u.Scheme {
		case "http", "https":
			return SourceURL, nil
		default:
			return "", goerr.New("unsupported URL scheme, only http(s) is available",
				goerr.T(types.TagBadInput), goerr.V("scheme", u.Scheme), goerr.V("input", raw))
		}
	}

	return SourceTorrent, nil
}

// ResolveInput classifies and fully resolves a --link argument.
func ResolveInput(raw string) (*Source, error) {
	kind, err := ClassifyInput(raw)
	if err != nil {
		return nil, err
	}

	switch kind {
	case SourceMagnet:
		return ResolveMagnet(raw)
	case SourceTorrent:
		return ResolveTorrentFile(raw)
	default:
		return &Source{Kind: SourceURL, Raw: raw, URLs: []string{raw}}, nil
	}
}

// ResolveMagnet parses a magnet URI and extracts its HTTP web seeds
// ("ws" and "as" parameters). Magnets without any web seed cannot be
// served: peer-wire transport is not built in.
func ResolveMagnet(raw string) (*Source, error) {
	m, err := metainfo.ParseMagnetUri(raw)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid magnet URI", goerr.T(types.TagBadInput))
	}

	var seeds []string
	for _, param := range []string{"ws", "as"} {
		for _, seed := range m.Params[param] {
			if !strings.HasPrefix(seed, "http://") && !strings.HasPrefix(seed, "https://") {
				continue
			}
			seeds = append(seeds, normalizeWebSeed(seed, m.DisplayName))
		}
	}
	if len(seeds) == 0 {
		return nil, goerr.New("magnet URI has no HTTP web seeds and peer-wire transport is not supported",
			goerr.T(types.TagTransfer), goerr.V("infohash", m.InfoHash.HexString()))
	}

	return &Source{
		Kind: SourceMagnet,
		Raw:  raw,
		Name: m.DisplayName,
		URLs: seeds,
	}, nil
}

// ResolveTorrentFile loads a .torrent file and extracts the single-file
// payload description plus its web seed list (url-list, BEP 19).
func ResolveTorrentFile(path string) (*Source, error) {
	if !strings.EqualFold(filepath.Ext(path), ".torrent") {
		return nil, goerr.New("input is neither a URL, a magnet URI, nor a .torrent file",
			goerr.T(types.TagBadInput), goerr.V("input", path))
	}
	if _, err := os.Stat(path); err != nil {
		return nil, goerr.Wrap(err, "torrent file not found", goerr.T(types.TagBadInput), goerr.V("path", path))
	}

	mi, err := metainfo.LoadFromFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse torrent file", goerr.T(types.TagBadInput), goerr.V("path", path))
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse torrent info dictionary", goerr.T(types.TagBadInput), goerr.V("path", path))
	}

	if info.IsDir() {
		return nil, goerr.New("multi-file torrents are not supported: a web seed of a directory is not a single ranged payload",
			goerr.T(types.TagTransfer), goerr.V("name", info.BestName()), goerr.V("files", len(info.Files)))
	}

	name := info.BestName()
	var seeds []string
	for _, seed := range mi.UrlList {
		if !strings.HasPrefix(seed, "http://") && !strings.HasPrefix(seed, "https://") {
			continue
		}
		seeds = append(seeds, normalizeWebSeed(seed, name))
	}
	if len(seeds) == 0 {
		return nil, goerr.New("torrent has no HTTP web seeds and peer-wire transport is not supported",
			goerr.T(types.TagTransfer), goerr.V("name", name))
	}

	return &Source{
		Kind: SourceTorrent,
		Raw:  path,
		Name: name,
		Size: info.TotalLength(),
		URLs: seeds,
	}, nil
}

// normalizeWebSeed applies the BEP 19 rule: a seed URL ending in "/"
// names a directory and the payload name is appended to it.
func normalizeWebSeed(seed, name string) string {
	if strings.HasSuffix(seed, "/") && name != "" {
		return seed + name
	}
	return seed
}
