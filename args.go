package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Args are command line arguments.
type Args struct {
	Port       int
	Password   string
	ConfigFile string
}

func getArgs() *Args {
	configFile := flag.String("conf", "", "Configuration file (optional).")

	flag.Parse()

	if flag.NArg() != 2 {
		printUsage(errors.New("you must provide a port and a password"))
		return nil
	}

	port, err := strconv.Atoi(flag.Arg(0))
	if err != nil || port < 1 || port > 65535 {
		printUsage(errors.Errorf(
			"invalid port: %s: it must be a number between 1 and 65535",
			flag.Arg(0)))
		return nil
	}

	password := flag.Arg(1)
	if len(password) == 0 {
		printUsage(errors.New("password may not be blank"))
		return nil
	}

	return &Args{
		Port:       port,
		Password:   password,
		ConfigFile: *configFile,
	}
}

func printUsage(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
	_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [arguments] <port> <password>\n",
		os.Args[0])
	flag.PrintDefaults()
}
