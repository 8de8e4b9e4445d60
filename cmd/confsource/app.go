package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/wixia/confsource/boot"
	"github.com/wixia/confsource/config"
	"github.com/wixia/confsource/env"
	"github.com/wixia/confsource/parser"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

const (
	formatJSON       = "json"
	formatYAML       = "yaml"
	formatProperties = "properties"

	loggerKey = "logger"
)

func newApp() *cli.App {
	return &cli.App{
		Name:     "confsource",
		Usage:    "resolve, inspect and serve hierarchical configuration",
		Version:  fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags:    globalFlags(),
		Metadata: map[string]any{},
		Commands: []*cli.Command{
			showCommand(),
			getCommand(),
			strategyCommand(),
			watchCommand(),
			serveCommand(),
		},
		Before: func(c *cli.Context) error {
			c.App.Metadata[loggerKey] = hclog.New(&hclog.LoggerOptions{
				Name:   "confsource",
				Level:  hclog.LevelFromString(c.String("log-level")),
				Output: c.App.ErrWriter,
			})
			return nil
		},
		// exit codes are handled by main so the app stays usable from tests
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Usage:   "directory resources are read from",
			EnvVars: []string{"CONF_DIR"},
		},
		&cli.StringFlag{
			Name:    "resource",
			Aliases: []string{"r"},
			Usage:   "root resource name, e.g. application or service.yaml",
		},
		&cli.StringFlag{
			Name:    "prefix",
			Aliases: []string{"p"},
			Usage:   "dotted path the view is narrowed to",
		},
		&cli.BoolFlag{
			Name:  "narrow-only",
			Usage: "do not fall back to the full tree for keys missing under the prefix",
		},
		&cli.StringFlag{
			Name:  "syntax",
			Usage: "force resource syntax: yaml or json",
		},
		&cli.BoolFlag{
			Name:  "allow-missing",
			Usage: "treat a missing root resource as empty",
		},
		&cli.BoolFlag{
			Name:  "no-env",
			Usage: "do not resolve ${...} references from the environment",
		},
		&cli.BoolFlag{
			Name:  "allow-unresolved",
			Usage: "keep unresolvable ${...} references verbatim",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "trace, debug, info, warn or error",
			EnvVars: []string{"CONFSOURCE_LOG_LEVEL"},
			Value:   env.LogLevel(),
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "print the resolved configuration",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"o"},
				Usage:   "output format: properties, json or yaml",
				Value:   formatProperties,
			},
		},
		Action: func(c *cli.Context) error {
			src, err := initSource(c)
			if err != nil {
				return err
			}
			return render(c.App.Writer, src, c.String("format"))
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "print a single resolved value",
		ArgsUsage: "KEY",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("get takes exactly one key", 2)
			}
			src, err := initSource(c)
			if err != nil {
				return err
			}
			props, err := src.Snapshot()
			if err != nil {
				return err
			}
			key := c.Args().First()
			v, ok := props.GetString(key)
			if !ok {
				return cli.Exit(fmt.Sprintf("key %q not found", key), 3)
			}
			_, err = fmt.Fprintln(c.App.Writer, v)
			return err
		},
	}
}

func strategyCommand() *cli.Command {
	return &cli.Command{
		Name:  "strategy",
		Usage: "print the loading strategy selected for the given flags, without loading",
		Action: func(c *cli.Context) error {
			set, err := optionSet(c)
			if err != nil {
				return err
			}
			s, err := config.Select(set)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.App.Writer, "%s\t%s\n", s, s.Fields())
			return err
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "print the configuration and again every time a resource changes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"o"},
				Value:   formatProperties,
			},
		},
		Action: func(c *cli.Context) error {
			logger := loggerFrom(c)
			src, err := initSource(c)
			if err != nil {
				return err
			}
			format := c.String("format")
			if err := render(c.App.Writer, src, format); err != nil {
				return err
			}
			src.Subscribe(func(context.Context) error {
				_, _ = fmt.Fprintln(c.App.Writer, "---")
				return render(c.App.Writer, src, format)
			})

			w, err := boot.NewWatcher(src, boot.WithWatcherLogger(logger))
			if err != nil {
				return err
			}
			if err := w.Watch(confDir(c)); err != nil {
				return err
			}

			sr := boot.NewShutdownRegistry(c.Context, boot.WithShutdownLogger(logger))
			ctx, cancel := context.WithCancel(c.Context)
			sr.Register(func(context.Context) {
				cancel()
				_ = w.Close()
			})
			w.Run(ctx)
			sr.Shutdown(ctx)
			<-sr.Done()
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the resolved configuration over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "listen address",
				EnvVars: []string{"CONFSOURCE_ADDR"},
				Value:   ":8080",
			},
		},
		Action: func(c *cli.Context) error {
			reg := prometheus.NewRegistry()
			src, err := initSource(c, config.WithMetrics(reg))
			if err != nil {
				return err
			}
			return boot.Run(c.Context, src,
				boot.WithAddr(c.String("addr")),
				boot.WithLogger(loggerFrom(c)),
				boot.WithGatherer(reg),
			)
		},
	}
}

// optionSet maps the flags the user actually set onto an option set.
func optionSet(c *cli.Context) (config.OptionSet, error) {
	var opts []config.SetOption

	if c.IsSet("dir") {
		opts = append(opts, config.WithLoaderContext(os.DirFS(c.String("dir"))))
	}
	if c.IsSet("resource") {
		opts = append(opts, config.WithResourceName(c.String("resource")))
	}
	if c.IsSet("syntax") || c.IsSet("allow-missing") {
		syntax, err := parseSyntax(c.String("syntax"))
		if err != nil {
			return config.OptionSet{}, err
		}
		opts = append(opts, config.WithParseOptions(config.ParseOptions{
			Syntax:       syntax,
			AllowMissing: c.Bool("allow-missing"),
		}))
	}
	if c.IsSet("no-env") || c.IsSet("allow-unresolved") {
		opts = append(opts, config.WithResolveOptions(config.ResolveOptions{
			UseSystemEnvironment: !c.Bool("no-env"),
			AllowUnresolved:      c.Bool("allow-unresolved"),
		}))
	}
	if c.IsSet("prefix") {
		opts = append(opts, config.WithPrefix(c.String("prefix")))
	}
	if c.Bool("narrow-only") {
		opts = append(opts, config.WithPrefixMode(config.NarrowOnly))
	}
	return config.NewOptionSet(opts...)
}

func initSource(c *cli.Context, extra ...config.SourceOption) (*config.Source, error) {
	set, err := optionSet(c)
	if err != nil {
		return nil, err
	}
	logger := loggerFrom(c)
	p := parser.New(parser.WithLogger(logger))

	opts := append([]config.SourceOption{config.WithName("cli"), config.WithLogger(logger)}, extra...)
	src, err := config.NewSource(p, set, opts...)
	if err != nil {
		return nil, err
	}
	if err := src.Init(c.Context); err != nil {
		return nil, err
	}
	return src, nil
}

func render(w io.Writer, src *config.Source, format string) error {
	props, err := src.Snapshot()
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(props)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(src.Tree().Raw())
	case formatProperties:
		for _, k := range props.Keys() {
			v, _ := props.GetString(k)
			if _, err := fmt.Fprintf(w, "%s=%s\n", k, v); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q, expected one of %s, %s, %s", format, formatProperties, formatJSON, formatYAML)
	}
}

func parseSyntax(s string) (config.Syntax, error) {
	switch strings.ToLower(s) {
	case "":
		return config.SyntaxAuto, nil
	case "yaml", "yml":
		return config.SyntaxYAML, nil
	case "json":
		return config.SyntaxJSON, nil
	default:
		return config.SyntaxAuto, fmt.Errorf("unknown syntax %q", s)
	}
}

func confDir(c *cli.Context) string {
	if c.IsSet("dir") {
		return c.String("dir")
	}
	return env.ConfDir()
}

func loggerFrom(c *cli.Context) hclog.Logger {
	if l, ok := c.App.Metadata[loggerKey].(hclog.Logger); ok {
		return l
	}
	return hclog.NewNullLogger()
}
