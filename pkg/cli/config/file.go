package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hauler/pkg/domain/types"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// File is the optional TOML configuration file. It only supplies
// defaults: flags and environment variables always win.
type File struct {
	Log struct {
		Level *string `toml:"level"`
		JSON  *bool   `toml:"json"`
	} `toml:"log"`
	Transfer struct {
		Connections *int    `toml:"connections"`
		SplitSize   *string `toml:"split_size"`
		Concurrency *int    `toml:"concurrency"`
		Timeout     *string `toml:"timeout"`
		RetryWait   *string `toml:"retry_wait"`
		Retries     *int    `toml:"retries"`
		MaxSpeed    *string `toml:"max_speed"`
		MinFree     *string `toml:"min_free"`
	} `toml:"transfer"`
	Network struct {
		UserAgent *string  `toml:"user_agent"`
		Headers   []string `toml:"headers"`
		Cookies   *string  `toml:"cookies"`
	} `toml:"network"`
	Storage struct {
		Dir *string `toml:"dir"`
	} `toml:"storage"`
	Status struct {
		Addr *string `toml:"addr"`
	} `toml:"status"`
}

// DefaultFilePath returns the conventional config file location.
func DefaultFilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, types.ServiceName, "config.toml")
}

// LoadFile reads a TOML config file. When explicit is false a missing
// file is not an error: the default location is optional.
func LoadFile(path string, explicit bool) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to read config file", goerr.T(types.TagEnvironment), goerr.V("path", path))
	}

	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, goerr.Wrap(err, "invalid config file", goerr.T(types.TagEnvironment), goerr.V("path", path))
	}
	return &f, nil
}

// Apply copies file values into the config structs for every flag the
// user did not set on the command line or environment.
func (f *File) Apply(cmd *cli.Command, logger *Logger, transfer *Transfer, network *Network, storage *Storage, status *Status) error {
	if f == nil {
		return nil
	}

	setString := func(flag string, dst *string, src *string) {
		if src != nil && !cmd.IsSet(flag) {
			*dst = *src
		}
	}
	setInt := func(flag string, dst *int, src *int) {
		if src != nil && !cmd.IsSet(flag) {
			*dst = *src
		}
	}
	setBool := func(flag string, dst *bool, src *bool) {
		if src != nil && !cmd.IsSet(flag) {
			*dst = *src
		}
	}
	setDuration := func(flag string, dst *time.Duration, src *string) error {
		if src == nil || cmd.IsSet(flag) {
			return nil
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			return goerr.Wrap(err, "invalid duration in config file",
				goerr.T(types.TagEnvironment), goerr.V("key", flag), goerr.V("value", *src))
		}
		*dst = d
		return nil
	}

	setString("log-level", &logger.Level, f.Log.Level)
	setBool("log-json", &logger.JSON, f.Log.JSON)

	setInt("connections", &transfer.Connections, f.Transfer.Connections)
	setString("split-size", &transfer.SplitSize, f.Transfer.SplitSize)
	setInt("concurrency", &transfer.Concurrency, f.Transfer.Concurrency)
	if err := setDuration("timeout", &transfer.Timeout, f.Transfer.Timeout); err != nil {
		return err
	}
	if err := setDuration("retry-wait", &transfer.RetryWait, f.Transfer.RetryWait); err != nil {
		return err
	}
	setInt("retries", &transfer.Retries, f.Transfer.Retries)
	setString("max-speed", &transfer.MaxSpeed, f.Transfer.MaxSpeed)
	setString("min-free", &transfer.MinFree, f.Transfer.MinFree)

	setString("user-agent", &network.UserAgent, f.Network.UserAgent)
	if len(f.Network.Headers) > 0 && !cmd.IsSet("header") {
		network.Headers = append([]string(nil), f.Network.Headers...)
	}
	setString("cookies", &network.Cookies, f.Network.Cookies)

	setString("dir", &storage.Dir, f.Storage.Dir)
	setString("status-addr", &status.Addr, f.Status.Addr)

	return nil
}
