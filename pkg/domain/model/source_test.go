package model_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hauler/pkg/domain/model"
	"github.com/m-mizutani/hauler/pkg/domain/types"
)

const testInfoHash = "c12fe1c06bba254a9dc9f519b335aa7c1367a88a"

func TestClassifyInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    model.SourceKind
		wantErr bool
	}{
		{
			name:  "plain http URL",
			input: "http://example.com/file.iso",
			want:  model.SourceURL,
		},
		{
			name:  "plain https URL",
			input: "https://example.com/file.iso",
			want:  model.SourceURL,
		},
		{
			name:  "magnet URI",
			input: "magnet:?xt=urn:btih:" + testInfoHash,
			want:  model.SourceMagnet,
		},
		{
			name:  "torrent file path",
			input: "downloads/movie.torrent",
			want:  model.SourceTorrent,
		},
		{
			name:  "relative path without scheme",
			input: "movie.torrent",
			want:  model.SourceTorrent,
		},
		{
			name:    "ftp URL rejected",
			input:   "ftp://example.com/file.iso",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := model.ClassifyInput(tt.input)
			if tt.wantErr {
				gt.Error(t, err)
				gt.True(t, goerr.HasTag(err, types.TagBadInput))
				return
			}
			gt.NoError(t, err)
			gt.Value(t, got).Equal(tt.want)
		})
	}
}

func TestResolveMagnet(t *testing.T) {
	t.Run("web seeds extracted with name appended", func(t *testing.T) {
		uri := "magnet:?xt=urn:btih:" + testInfoHash +
			"&dn=payload.bin" +
			"&ws=http%3A%2F%2Fseed1.example%2Fdata%2F" +
			"&ws=https%3A%2F%2Fseed2.example%2Fpayload.bin"

		src := gt.R1(model.ResolveMagnet(uri)).NoError(t)
		gt.Value(t, src.Kind).Equal(model.SourceMagnet)
		gt.Value(t, src.Name).Equal("payload.bin")
		gt.Array(t, src.URLs).Equal([]string{
			"http://seed1.example/data/payload.bin",
			"https://seed2.example/payload.bin",
		})
	})

	t.Run("no web seeds is a transfer error", func(t *testing.T) {
		uri := "magnet:?xt=urn:btih:" + testInfoHash + "&dn=payload.bin"
		_, err := model.ResolveMagnet(uri)
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, types.TagTransfer))
	})

	t.Run("invalid infohash is a bad input", func(t *testing.T) {
		_, err := model.ResolveMagnet("magnet:?xt=urn:btih:short")
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, types.TagBadInput))
	})
}

func writeTorrent(t *testing.T, dir string, info metainfo.Info, urlList []string) string {
	t.Helper()

	mi := metainfo.MetaInfo{
		InfoBytes: bencode.MustMarshal(info),
		UrlList:   urlList,
	}
	path := filepath.Join(dir, "test.torrent")
	f := gt.R1(os.Create(path)).NoError(t)
	defer f.Close()
	gt.NoError(t, mi.Write(f))
	return path
}

func TestResolveTorrentFile(t *testing.T) {
	t.Run("single file with web seeds", func(t *testing.T) {
		path := writeTorrent(t, t.TempDir(), metainfo.Info{
			Name:        "payload.bin",
			Length:      4096,
			PieceLength: 16384,
		}, []string{
			"http://seed.example/files/",
			"udp://not-a-web-seed.example/",
		})

		src := gt.R1(model.ResolveTorrentFile(path)).NoError(t)
		gt.Value(t, src.Kind).Equal(model.SourceTorrent)
		gt.Value(t, src.Name).Equal("payload.bin")
		gt.Value(t, src.Size).Equal(int64(4096))
		gt.Array(t, src.URLs).Equal([]string{"http://seed.example/files/payload.bin"})
	})

	t.Run("multi-file torrent rejected", func(t *testing.T) {
		path := writeTorrent(t, t.TempDir(), metainfo.Info{
			Name:        "bundle",
			PieceLength: 16384,
			Files: []metainfo.FileInfo{
				{Path: []string{"a.bin"}, Length: 1},
				{Path: []string{"b.bin"}, Length: 2},
			},
		}, []string{"http://seed.example/files/"})

		_, err := model.ResolveTorrentFile(path)
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, types.TagTransfer))
	})

	t.Run("no web seeds rejected", func(t *testing.T) {
		path := writeTorrent(t, t.TempDir(), metainfo.Info{
			Name:        "payload.bin",
			Length:      4096,
			PieceLength: 16384,
		}, nil)

		_, err := model.ResolveTorrentFile(path)
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, types.TagTransfer))
	})

	t.Run("missing file is a bad input", func(t *testing.T) {
		_, err := model.ResolveTorrentFile(filepath.Join(t.TempDir(), "nope.torrent"))
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, types.TagBadInput))
	})

	t.Run("wrong extension is a bad input", func(t *testing.T) {
		_, err := model.ResolveTorrentFile("something.iso")
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, types.TagBadInput))
	})
}
