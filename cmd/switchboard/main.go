// Command switchboard is a CLI for talking to configured agents over
// any supported chat provider.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"github.com/switchboardai/switchboard/pkg/config"
	"github.com/switchboardai/switchboard/pkg/logger"
	"github.com/switchboardai/switchboard/pkg/version"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Chat     ChatCmd     `cmd:"" default:"withargs" help:"Chat with an agent."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (text, json)." default:"text"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(version.Get())
	return nil
}

// ValidateCmd checks a configuration file without talking to providers.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("validate requires --config")
	}
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	fmt.Printf("%s: OK (%d llms, %d agents)\n", cli.Config, len(cfg.LLMs), len(cfg.Agents))
	return nil
}

func initLogger(cli *CLI) (func(), error) {
	var output io.Writer = os.Stderr
	cleanup := func() {}

	if cli.LogFile != "" {
		file, closeFile, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			return nil, err
		}
		output = file
		cleanup = closeFile
	}

	logger.Init(logger.ParseLevel(cli.LogLevel), output, cli.LogFormat)
	return cleanup, nil
}

func main() {
	config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("switchboard"),
		kong.Description("Provider-agnostic agent chat."),
		kong.UsageOnError(),
	)

	cleanup, err := initLogger(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
