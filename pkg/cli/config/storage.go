package config

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
)

// Storage holds download target configuration
type Storage struct {
	Dir   string
	Out   string
	Force bool
}

// Flags returns CLI flags for storage configuration
func (c *Storage) Flags() []cli.Flag {
	return append(c.DirFlags(),
		&cli.StringFlag{
			Name:        "out",
			Aliases:     []string{"o"},
			Usage:       "Output filename override",
			Destination: &c.Out,
		},
		&cli.BoolFlag{
			Name:        "force",
			Usage:       "Replace an existing completed file",
			Destination: &c.Force,
			Sources:     cli.EnvVars("HAULER_FORCE"),
		},
	)
}

// DirFlags returns only the directory flag, for subcommands that take
// no output options.
func (c *Storage) DirFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "dir",
			Aliases:     []string{"d"},
			Usage:       "Download directory",
			Value:       DefaultDir(),
			Destination: &c.Dir,
			Sources:     cli.EnvVars("HAULER_DIR"),
		},
	}
}

// DefaultDir picks the platform's conventional download directory.
func DefaultDir() string {
	// Android has no meaningful $HOME; shared downloads live on /sdcard
	if os.Getenv("ANDROID_ROOT") != "" {
		return "/sdcard/Download"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}
