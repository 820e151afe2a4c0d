package config

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hauler/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// Input holds the mutually exclusive download inputs
type Input struct {
	Link    string
	Torrent bool
	Resume  string
}

// Flags returns CLI flags for input selection
func (c *Input) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "link",
			Aliases:     []string{"l"},
			Usage:       "Download a URL, magnet URI, or torrent file path",
			Destination: &c.Link,
			Sources:     cli.EnvVars("HAULER_LINK"),
		},
		&cli.BoolFlag{
			Name:        "torrent",
			Aliases:     []string{"t"},
			Usage:       "Use the most recently modified .torrent file in the download directory",
			Destination: &c.Torrent,
		},
		&cli.StringFlag{
			Name:        "resume",
			Aliases:     []string{"r"},
			Usage:       "Resume the transfer whose data file is FILE (FILE.haul must exist)",
			Destination: &c.Resume,
		},
	}
}

// Validate requires exactly one input mode per invocation
func (c *Input) Validate() error {
	selected := 0
	if c.Link != "" {
		selected++
	}
	if c.Torrent {
		selected++
	}
	if c.Resume != "" {
		selected++
	}
	if selected != 1 {
		return goerr.New("exactly one of --link, --torrent or --resume is required",
			goerr.T(types.TagBadInput), goerr.V("selected", selected))
	}
	return nil
}
