package config

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hauler/pkg/domain/types"
	"github.com/m-mizutani/hauler/pkg/utils/bytefmt"
	"github.com/urfave/cli/v3"
)

// Transfer holds transfer tuning configuration
type Transfer struct {
	Connections int
	SplitSize   string
	Concurrency int
	Timeout     time.Duration
	RetryWait   time.Duration
	Retries     int
	MaxSpeed    string
	MinFree     string
}

// Tuning is the validated, parsed form of Transfer
type Tuning struct {
	Connections int
	SplitSize   int64
	Concurrency int
	Timeout     time.Duration
	RetryWait   time.Duration
	Retries     int
	MaxRate     int64
	MinFree     int64
}

// Flags returns CLI flags for transfer tuning
func (c *Transfer) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "connections",
			Aliases:     []string{"x"},
			Usage:       "Max connections per source host",
			Value:       8,
			Destination: &c.Connections,
			Sources:     cli.EnvVars("HAULER_CONNECTIONS"),
		},
		&cli.StringFlag{
			Name:        "split-size",
			Aliases:     []string{"k"},
			Usage:       "Minimum bytes per segment (e.g. 16MB)",
			Value:       "16MB",
			Destination: &c.SplitSize,
			Sources:     cli.EnvVars("HAULER_SPLIT_SIZE"),
		},
		&cli.IntFlag{
			Name:        "concurrency",
			Aliases:     []string{"j"},
			Usage:       "Segment workers running at once",
			Value:       4,
			Destination: &c.Concurrency,
			Sources:     cli.EnvVars("HAULER_CONCURRENCY"),
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "Connect, response-header, and read-stall timeout",
			Value:       30 * time.Second,
			Destination: &c.Timeout,
			Sources:     cli.EnvVars("HAULER_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:        "retry-wait",
			Usage:       "Pause between attempts on one segment",
			Value:       2 * time.Second,
			Destination: &c.RetryWait,
			Sources:     cli.EnvVars("HAULER_RETRY_WAIT"),
		},
		&cli.IntFlag{
			Name:        "retries",
			Aliases:     []string{"m"},
			Usage:       "Attempts per segment before the transfer fails",
			Value:       5,
			Destination: &c.Retries,
			Sources:     cli.EnvVars("HAULER_RETRIES"),
		},
		&cli.StringFlag{
			Name:        "max-speed",
			Usage:       "Overall download rate cap (e.g. 2MB), 0 for unlimited",
			Value:       "0",
			Destination: &c.MaxSpeed,
			Sources:     cli.EnvVars("HAULER_MAX_SPEED"),
		},
		&cli.StringFlag{
			Name:        "min-free",
			Usage:       "Extra free disk space required beyond the expected size",
			Value:       "10MB",
			Destination: &c.MinFree,
			Sources:     cli.EnvVars("HAULER_MIN_FREE"),
		},
	}
}

// Validate parses and checks the tuning values
func (c *Transfer) Validate() (*Tuning, error) {
	if c.Connections < 1 {
		return nil, goerr.New("connections must be at least 1",
			goerr.T(types.TagEnvironment), goerr.V("connections", c.Connections))
	}
	if c.Concurrency < 1 {
		return nil, goerr.New("concurrency must be at least 1",
			goerr.T(types.TagEnvironment), goerr.V("concurrency", c.Concurrency))
	}
	if c.Retries < 1 {
		return nil, goerr.New("retries must be at least 1",
			goerr.T(types.TagEnvironment), goerr.V("retries", c.Retries))
	}
	if c.Timeout <= 0 {
		return nil, goerr.New("timeout must be positive",
			goerr.T(types.TagEnvironment), goerr.V("timeout", c.Timeout))
	}
	if c.RetryWait < 0 {
		return nil, goerr.New("retry-wait must not be negative",
			goerr.T(types.TagEnvironment), goerr.V("retry_wait", c.RetryWait))
	}

	splitSize, err := bytefmt.Parse(c.SplitSize)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid split-size", goerr.T(types.TagEnvironment))
	}
	if splitSize < 64*1024 {
		return nil, goerr.New("split-size must be at least 64KB",
			goerr.T(types.TagEnvironment), goerr.V("split_size", c.SplitSize))
	}

	maxRate, err := bytefmt.Parse(c.MaxSpeed)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid max-speed", goerr.T(types.TagEnvironment))
	}

	minFree, err := bytefmt.Parse(c.MinFree)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid min-free", goerr.T(types.TagEnvironment))
	}

	return &Tuning{
		Connections: c.Connections,
		SplitSize:   splitSize,
		Concurrency: c.Concurrency,
		Timeout:     c.Timeout,
		RetryWait:   c.RetryWait,
		Retries:     c.Retries,
		MaxRate:     maxRate,
		MinFree:     minFree,
	}, nil
}
