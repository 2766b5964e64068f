package cmd

import (
	"errors"
	"fmt"
	"os"

	scanner "github.com/dutchcoders/log4shell-scanner/app"
	build "github.com/dutchcoders/log4shell-scanner/build"
	"github.com/fatih/color"
	logging "github.com/op/go-logging"

	cli "github.com/urfave/cli/v2"
)

var log = logging.MustGetLogger("log4shell/cmd")

var format = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} %{module} ▶ %{level:.4s}%{color:reset} %{message}`,
)

var globalFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:    "disable-color",
		Usage:   "disable color output",
		EnvVars: []string{"LOG4SHELL_DISABLE_COLOR"},
	},
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "quiet",
			Usage:   "only print diagnosis lines",
			EnvVars: []string{"LOG4SHELL_QUIET"},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "enable verbose mode",
			EnvVars: []string{"LOG4SHELL_VERBOSE"},
		},
		&cli.BoolFlag{
			Name:    "debug",
			Usage:   "enable debug mode",
			EnvVars: []string{"LOG4SHELL_DEBUG"},
		},
		&cli.BoolFlag{
			Name:    "json",
			Usage:   "output json",
			EnvVars: []string{"LOG4SHELL_JSON"},
		},
		&cli.BoolFlag{
			Name:    "progress",
			Usage:   "show a live status line",
			EnvVars: []string{"LOG4SHELL_PROGRESS"},
		},
		&cli.StringFlag{
			Name:    "logfile",
			Usage:   "append results to the following file path (string)",
			EnvVars: []string{"LOG4SHELL_LOGFILE"},
		},
		&cli.IntFlag{
			Name:    "max-depth",
			Usage:   "the maximum nesting of archives, 0 opens top-level archives only, negative disables the limit",
			Value:   16,
			EnvVars: []string{"LOG4SHELL_MAX_DEPTH"},
		},
		&cli.Int64Flag{
			Name:    "max-bytes",
			Usage:   "the maximum decompressed bytes read per top-level archive, 0 disables the limit",
			Value:   4 << 30,
			EnvVars: []string{"LOG4SHELL_MAX_BYTES"},
		},
	}
}

func scanFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringSliceFlag{
			Name:    "exclude",
			Usage:   "exclude the following directories (exact path)",
			Value:   cli.NewStringSlice(),
			EnvVars: []string{"LOG4SHELL_EXCLUDE"},
		},
		&cli.StringSliceFlag{
			Name:    "exclude-pattern",
			Usage:   "exclude directories matching the following patterns (glob)",
			Value:   cli.NewStringSlice(),
			EnvVars: []string{"LOG4SHELL_EXCLUDE_PATTERN"},
		},
		&cli.IntFlag{
			Name:    "num-threads",
			Usage:   "the number of threads to use",
			Value:   10,
			EnvVars: []string{"LOG4SHELL_NUM_THREADS"},
		},
	}, outputFlags()...)
}

type Cmd struct {
	*cli.App
}

// given returns the nearest context in which name was passed on the command
// line. Flags are defined on both the app and its commands, so a flag placed
// before the command name is only visible in the parent context.
func given(c *cli.Context, name string) *cli.Context {
	for _, ctx := range c.Lineage() {
		for _, n := range ctx.LocalFlagNames() {
			if n == name {
				return ctx
			}
		}
	}

	return c
}

func boolFlag(c *cli.Context, name string) bool {
	return given(c, name).Bool(name)
}

func intFlag(c *cli.Context, name string) int {
	return given(c, name).Int(name)
}

func int64Flag(c *cli.Context, name string) int64 {
	return given(c, name).Int64(name)
}

func stringFlag(c *cli.Context, name string) string {
	return given(c, name).String(name)
}

// stringSliceFlag merges the values given at every level.
func stringSliceFlag(c *cli.Context, name string) []string {
	values := []string{}
	found := false

	for _, ctx := range c.Lineage() {
		for _, n := range ctx.LocalFlagNames() {
			if n == name {
				values = append(values, ctx.StringSlice(name)...)
				found = true
				break
			}
		}
	}

	if !found {
		return c.StringSlice(name)
	}

	return values
}

func setupLogging(c *cli.Context) {
	backend := logging.NewLogBackend(color.Error, "", 0)

	level := logging.WARNING
	if boolFlag(c, "quiet") {
		level = logging.CRITICAL
	} else if boolFlag(c, "debug") {
		level = logging.DEBUG
	} else if boolFlag(c, "verbose") {
		level = logging.INFO
	}

	leveled := logging.AddModuleLevel(logging.NewBackendFormatter(backend, format))
	leveled.SetLevel(level, "")

	logging.SetBackend(leveled)
}

func banner(c *cli.Context) {
	if boolFlag(c, "quiet") || boolFlag(c, "json") {
		return
	}

	fmt.Fprintln(color.Error, "log4shell-scanner by DTACT")
	fmt.Fprintln(color.Error, "http://github.com/dtact/log4shell-scanner")
	fmt.Fprintln(color.Error, "--------------------------------------")
}

// outputOptions builds the options shared by scan and scan-image.
func outputOptions(c *cli.Context) ([]scanner.OptionFn, error) {
	options := []scanner.OptionFn{}

	if fn, err := scanner.MaxDepth(intFlag(c, "max-depth")); err != nil {
		return nil, cli.Exit(color.RedString("[!] Could not set max depth: %s", err.Error()), 1)
	} else {
		options = append(options, fn)
	}

	if fn, err := scanner.MaxBytes(int64Flag(c, "max-bytes")); err != nil {
		return nil, cli.Exit(color.RedString(err.Error()), 1)
	} else {
		options = append(options, fn)
	}

	if logfile := stringFlag(c, "logfile"); len(logfile) == 0 {
	} else if fn, err := scanner.LogFile(logfile); err != nil {
		return nil, cli.Exit(color.RedString("[!] Could not set logfile: %s", err.Error()), 1)
	} else {
		options = append(options, fn)
	}

	if !boolFlag(c, "quiet") {
	} else if fn, err := scanner.Quiet(); err != nil {
	} else {
		options = append(options, fn)
	}

	if !boolFlag(c, "verbose") && !boolFlag(c, "debug") {
	} else if fn, err := scanner.Verbose(); err != nil {
	} else {
		options = append(options, fn)
	}

	if !boolFlag(c, "json") {
	} else if fn, err := scanner.JSON(); err != nil {
	} else {
		options = append(options, fn)
	}

	if !boolFlag(c, "progress") {
	} else if fn, err := scanner.Progress(); err != nil {
	} else {
		options = append(options, fn)
	}

	return options, nil
}

func exitError(err error) error {
	var ue *scanner.UsageError
	if errors.As(err, &ue) {
		return cli.Exit(color.RedString("[!] %s", ue.Error()), 1)
	}

	return cli.Exit(color.RedString("[!] Error: %s", err.Error()), 1)
}

func ScanAction(c *cli.Context) error {
	setupLogging(c)
	banner(c)

	if c.NArg() != 1 {
		return cli.Exit(color.RedString("[!] Expected exactly one root path, got %d", c.NArg()), 1)
	}

	options, err := outputOptions(c)
	if err != nil {
		return err
	}

	if fn, err := scanner.NumThreads(intFlag(c, "num-threads")); err != nil {
		return cli.Exit(color.RedString(err.Error()), 1)
	} else {
		options = append(options, fn)
	}

	if fn, err := scanner.Root(c.Args().First()); err != nil {
		return cli.Exit(color.RedString("[!] Could not set root: %s", err.Error()), 1)
	} else {
		options = append(options, fn)
	}

	if exclude := stringSliceFlag(c, "exclude"); len(exclude) == 0 {
	} else if fn, err := scanner.ExcludeList(exclude); err != nil {
		return cli.Exit(color.RedString("[!] Could not set exclude list: %s", err.Error()), 1)
	} else {
		options = append(options, fn)
	}

	if patterns := stringSliceFlag(c, "exclude-pattern"); len(patterns) == 0 {
	} else if fn, err := scanner.ExcludePatterns(patterns); err != nil {
		return cli.Exit(color.RedString("[!] Could not set exclude patterns: %s", err.Error()), 1)
	} else {
		options = append(options, fn)
	}

	b, err := scanner.New(options...)
	if err != nil {
		return cli.Exit(color.RedString("[!] Error: %s", err.Error()), 1)
	}

	defer b.Close()

	if err := b.Scan(c.Context); err != nil {
		return exitError(err)
	}

	return nil
}

func ScanImageAction(c *cli.Context) error {
	setupLogging(c)
	banner(c)

	options, err := outputOptions(c)
	if err != nil {
		return err
	}

	b, err := scanner.New(options...)
	if err != nil {
		return cli.Exit(color.RedString("[!] Error: %s", err.Error()), 1)
	}

	defer b.Close()

	if err := b.ScanImage(c.Context, c.Args().Slice()); err != nil {
		return exitError(err)
	}

	return nil
}

func New() *Cmd {
	app := cli.NewApp()
	app.Name = "log4shell-scanner"
	app.Usage = "scan nested java archives for log4j JndiManager and JndiLookup classes"
	app.Copyright = "All rights reserved Remco Verhoef [DTACT]"
	app.Authors = []*cli.Author{
		{
			Name:  "Remco Verhoef",
			Email: "remco.verhoef@dtact.com",
		}}
	app.Description = `This application will scan recursively through archives to detect log4j libraries by fingerprinting the JndiManager.class and JndiLookup.class files.`
	app.Flags = append(append([]cli.Flag{}, globalFlags...), scanFlags()...)
	app.ArgsUsage = "<root>"
	app.Commands = []*cli.Command{
		{
			Name:      "scan",
			Usage:     "scan a directory tree or a single archive",
			ArgsUsage: "<root>",
			Action:    ScanAction,
			Flags:     scanFlags(),
		},
		{
			Name:      "scan-image",
			Usage:     "scan local docker images, all of them when none are given",
			ArgsUsage: "[image...]",
			Action:    ScanImageAction,
			Flags:     outputFlags(),
		},
	}

	app.Version = fmt.Sprintf("%s (build on %s)", build.ReleaseTag, build.BuildDate)
	app.Before = func(c *cli.Context) error {
		color.NoColor = c.Bool("disable-color")

		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			color.NoColor = true
		}

		log.Debugf("log4shell-scanner %s", app.Version)
		return nil
	}

	app.Action = ScanAction
	return &Cmd{
		App: app,
	}
}
