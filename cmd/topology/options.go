package main

import (
	"errors"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Options defines command line options.
type Options struct {
	Inventory     string        `short:"i" long:"inventory" description:"inventory CSV to discover"`
	Reports       string        `short:"r" long:"reports" description:"build from saved neighbor reports (JSON) instead of polling devices"`
	Output        string        `short:"o" long:"output" description:"write the graph JSON here instead of stdout"`
	Categories    string        `short:"c" long:"categories" env:"CATEGORY_FILE" description:"YAML file with model to category overrides"`
	NoDedup       bool          `long:"no-dedup" description:"keep every reported link as its own edge"`
	RawInterfaces bool          `long:"raw-interfaces" description:"do not shorten interface names"`
	Workers       int           `short:"w" long:"workers" env:"WORKERS" default:"10" description:"devices polled in parallel"`
	Timeout       time.Duration `short:"t" long:"timeout" default:"60s" description:"per device timeout"`
	SSHUser       string        `long:"ssh-user" env:"SSH_USER" description:"SSH username"`
	SSHPassword   string        `long:"ssh-password" env:"SSH_PWD" default-mask:"-" description:"SSH password"`
	SSHPort       int           `long:"ssh-port" env:"SSH_PORT" default:"22" description:"SSH port"`
	Community     string        `long:"community" env:"SNMP_COMMUNITY" default:"public" description:"default SNMP community"`
	Debug         bool          `short:"d" long:"debug" description:"debug logging"`
}

// loadOptions reads .env if it exists, so env-backed options see its
// values, and then parses args.
func loadOptions(args []string) (*Options, error) {
	_ = godotenv.Load()
	return parseOptions(args)
}

// parseOptions returns parsed command-line flags.
func parseOptions(args []string) (*Options, error) {
	opts := &Options{}
	parser := flags.NewParser(opts, flags.Default)
	parser.Name = "topology"
	parser.Usage = "[OPTIONS]"

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	if (opts.Inventory == "") == (opts.Reports == "") {
		return nil, errors.New("exactly one of --inventory or --reports is required")
	}
	return opts, nil
}

func isHelp(err error) bool {
	return flags.WroteHelp(err)
}

// printed reports whether the parser already wrote err to stderr.
func printed(err error) bool {
	var ferr *flags.Error
	return errors.As(err, &ferr)
}
