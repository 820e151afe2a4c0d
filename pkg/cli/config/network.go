package config

import (
	"github.com/m-mizutani/hauler/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// Network holds outbound request configuration
type Network struct {
	UserAgent string
	Headers   []string
	Cookies   string
}

// Flags returns CLI flags for network configuration
func (c *Network) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "user-agent",
			Usage:       "User-Agent header for all requests",
			Value:       types.ServiceName + "/" + types.Version,
			Destination: &c.UserAgent,
			Sources:     cli.EnvVars("HAULER_USER_AGENT"),
		},
		&cli.StringSliceFlag{
			Name:        "header",
			Aliases:     []string{"H"},
			Usage:       "Extra request header as \"Key: Value\" (repeatable)",
			Destination: &c.Headers,
		},
		&cli.StringFlag{
			Name:        "cookies",
			Usage:       "Netscape cookies.txt file to send cookies from",
			Destination: &c.Cookies,
			Sources:     cli.EnvVars("HAULER_COOKIES"),
		},
	}
}
