package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hauler/pkg/domain/types"
	"github.com/m-mizutani/hauler/pkg/utils/bytefmt"
)

// EnsureDir creates the download directory when missing and verifies it
// is writable by creating and removing a probe file.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return goerr.Wrap(err, "failed to create download directory", goerr.T(types.TagStorage), goerr.V("dir", dir))
	}

	probe, err := os.CreateTemp(dir, ".hauler-write-check-*")
	if err != nil {
		return goerr.Wrap(err, "download directory is not writable", goerr.T(types.TagStorage), goerr.V("dir", dir))
	}
	name := probe.Name()
	_ = probe.Close()
	if err := os.Remove(name); err != nil {
		return goerr.Wrap(err, "failed to remove write-check file", goerr.T(types.TagStorage), goerr.V("path", name))
	}
	return nil
}

// CheckFreeSpace verifies the filesystem holding dir has at least need
// bytes available. Platforms without statfs support skip the check.
func CheckFreeSpace(dir string, need int64) error {
	free, ok, err := freeSpace(dir)
	if err != nil {
		return goerr.Wrap(err, "failed to check free disk space", goerr.T(types.TagStorage), goerr.V("dir", dir))
	}
	if !ok {
		return nil
	}
	if free < need {
		return goerr.New("not enough free disk space",
			goerr.T(types.TagStorage),
			goerr.V("dir", dir),
			goerr.V("need", bytefmt.Format(need)),
			goerr.V("free", bytefmt.Format(free)),
		)
	}
	return nil
}

// LatestTorrent returns the most recently modified *.torrent file in
// dir. The extension match is case-insensitive.
func LatestTorrent(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read download directory", goerr.T(types.TagStorage), goerr.V("dir", dir))
	}

	var latest string
	var latestMod int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".torrent") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		if mod := fi.ModTime().UnixNano(); latest == "" || mod > latestMod {
			latest = entry.Name()
			latestMod = mod
		}
	}

	if latest == "" {
		return "", goerr.New("no .torrent files in download directory", goerr.T(types.TagBadInput), goerr.V("dir", dir))
	}
	return filepath.Join(dir, latest), nil
}
