package config

import "github.com/urfave/cli/v3"

// Status holds status server configuration
type Status struct {
	Addr string
}

// Flags returns CLI flags for the status endpoint
func (c *Status) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "status-addr",
			Usage:       "Serve live progress on this address (e.g. 127.0.0.1:8080); disabled when empty",
			Destination: &c.Addr,
			Sources:     cli.EnvVars("HAULER_STATUS_ADDR"),
		},
	}
}
