// Command avsync-sim replays a scripted RTP audio stream through the
// receiver on a simulated clock and prints what the initial delay and
// sync packet logic did with it.
package main

import (
	"fmt"
	"os"

	"github.com/opd-ai/avsync/av/receiver"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var flags = []cli.Flag{
	&cli.StringFlag{
		Name:     "scenario",
		Usage:    "path to the YAML scenario",
		Required: true,
	},
	&cli.StringFlag{
		Name:  "config",
		Usage: "path to receiver config file",
	},
	&cli.StringFlag{
		Name:    "config-body",
		Usage:   "receiver config in YAML",
		EnvVars: []string{"AVSYNC_CONFIG"},
	},
	&cli.IntFlag{
		Name:  "initial-delay",
		Usage: "initial playout delay in ms, overrides the config",
	},
	&cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn or error",
		Value: "warn",
	},
	&cli.BoolFlag{
		Name:   "disable-strict-config",
		Usage:  "accept unknown keys in config and scenario",
		Hidden: true,
	},
}

func main() {
	app := &cli.App{
		Name:   "avsync-sim",
		Usage:  "simulate initial delay buffering and sync packet insertion",
		Flags:  flags,
		Action: runSimulation,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSimulation(c *cli.Context) error {
	level, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	strict := !c.Bool("disable-strict-config")

	cfg, err := getConfig(c, strict)
	if err != nil {
		return err
	}

	body, err := os.ReadFile(c.String("scenario"))
	if err != nil {
		return fmt.Errorf("could not read scenario: %w", err)
	}
	scenario, err := LoadScenario(body, strict)
	if err != nil {
		return err
	}

	report, err := simulate(scenario, *cfg)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(report)
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(out)
	return err
}

func getConfig(c *cli.Context, strict bool) (*receiver.Config, error) {
	confString, err := getConfigString(c.String("config"), c.String("config-body"))
	if err != nil {
		return nil, err
	}

	conf, err := receiver.LoadConfig(confString, strict)
	if err != nil {
		return nil, err
	}

	if c.IsSet("initial-delay") {
		conf.InitialDelayMs = c.Int("initial-delay")
		if err := conf.Validate(); err != nil {
			return nil, err
		}
	}
	return conf, nil
}

func getConfigString(configFile string, inConfigBody string) (string, error) {
	if inConfigBody != "" || configFile == "" {
		return inConfigBody, nil
	}

	outConfigBody, err := os.ReadFile(configFile)
	if err != nil {
		return "", err
	}
	return string(outConfigBody), nil
}
