package main

import (
	"strconv"

	"github.com/horgh/config"
	"github.com/pkg/errors"
)

// Config holds a server's configuration.
type Config struct {
	ListenHost string
	ListenPort string
	Password   string

	ServerName  string
	Version     string
	CreatedDate string
	MOTD        string

	MaxNickLength int

	// Whether to reverse resolve client addresses into hostnames.
	LookupHostnames bool
}

// newConfig builds a configuration with defaults for everything but the
// port and password, which always come from the command line.
func newConfig(port int, password string) *Config {
	return &Config{
		ListenHost: "0.0.0.0",
		ListenPort: strconv.Itoa(port),
		Password:   password,

		ServerName:  "ircserv",
		Version:     "1.0",
		CreatedDate: "today",
		MOTD:        "Welcome to our little IRC server!",

		MaxNickLength:   9,
		LookupHostnames: true,
	}
}

// parseFile layers settings from a config file over the defaults. Every
// key is optional.
func (c *Config) parseFile(file string) error {
	configMap, err := config.ReadStringMap(file)
	if err != nil {
		return errors.Wrap(err, "unable to read config")
	}

	if v, exists := configMap["listen-host"]; exists {
		c.ListenHost = v
	}
	if v, exists := configMap["server-name"]; exists {
		c.ServerName = v
	}
	if v, exists := configMap["version"]; exists {
		c.Version = v
	}
	if v, exists := configMap["created-date"]; exists {
		c.CreatedDate = v
	}
	if v, exists := configMap["motd"]; exists {
		c.MOTD = v
	}

	if v, exists := configMap["max-nick-length"]; exists {
		nickLen64, err := strconv.ParseInt(v, 10, 8)
		if err != nil || nickLen64 < 1 {
			return errors.Errorf("max nick length is not valid: %s", v)
		}
		c.MaxNickLength = int(nickLen64)
	}

	if v, exists := configMap["lookup-hostnames"]; exists {
		lookup, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Errorf("lookup-hostnames is not valid: %s", v)
		}
		c.LookupHostnames = lookup
	}

	return nil
}
