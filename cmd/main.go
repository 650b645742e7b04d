// cmd/main.go

package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"AveStream/pkg/store"
	"AveStream/pkg/stream"
	"AveStream/pkg/utils"
	"AveStream/pkg/version"

	"github.com/google/gops/agent"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var logger = utils.GetLogger("avestream")

const envPrefix = "AVESTREAM"

// config is read from AVESTREAM_* variables, then overridden by flags.
type config struct {
	URL  string `envconfig:"STORE" default:"redis://127.0.0.1:6379/1"`
	Kind string `envconfig:"KIND" default:"Blob"`
	store.Config
}

func loadConfig() (*config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %s", err)
	}
	var conf config
	if err := envconfig.Process(envPrefix, &conf); err != nil {
		return nil, fmt.Errorf("environment: %s", err)
	}
	return &conf, nil
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "store",
			Aliases: []string{"s"},
			Usage:   "store URL: redis://, etcd://, postgres:// or mem:// (default from $AVESTREAM_STORE)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"debug"},
			Usage:   "enable debug log",
		},
		&cli.BoolFlag{
			Name:  "trace",
			Usage: "enable trace log",
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "only warning and errors",
		},
		&cli.StringFlag{
			Name:  "log",
			Usage: "path of the log file",
		},
		&cli.BoolFlag{
			Name:  "gops",
			Usage: "start a gops agent for diagnostics",
		},
		&cli.StringFlag{
			Name:  "metrics",
			Usage: "address to export store metrics in Prometheus format, e.g. 127.0.0.1:9567",
		},
	}
}

func setLoggerLevel(c *cli.Context) {
	switch {
	case c.Bool("trace"):
		utils.SetLogLevel(logrus.TraceLevel)
	case c.Bool("verbose"):
		utils.SetLogLevel(logrus.DebugLevel)
	case c.Bool("quiet"):
		utils.SetLogLevel(logrus.WarnLevel)
	default:
		utils.SetLogLevel(logrus.InfoLevel)
	}
	if f := c.String("log"); f != "" {
		if err := utils.SetOutFile(f); err != nil {
			logger.Warnf("open log file %s: %s", f, err)
		}
	}
}

func setup(c *cli.Context) error {
	setLoggerLevel(c)
	if c.Bool("gops") {
		if err := agent.Listen(agent.Options{}); err != nil {
			logger.Warnf("start gops agent: %s", err)
		}
	}
	if addr := c.String("metrics"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Infof("Prometheus metrics listening on %s", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Errorf("metrics server: %s", err)
			}
		}()
	}
	return nil
}

// openStore connects to the store selected by --store or the environment.
func openStore(c *cli.Context) (store.Store, *config, error) {
	conf, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if c.IsSet("store") {
		conf.URL = c.String("store")
	}
	if c.IsSet("kind") {
		conf.Kind = c.String("kind")
	}
	s, err := store.NewClient(conf.URL, &conf.Config)
	if err != nil {
		return nil, nil, err
	}
	if c.String("metrics") != "" {
		s = store.Instrument(s, prometheus.DefaultRegisterer)
	}
	return s, conf, nil
}

// parseStream turns a command line argument into a stream identity: either an
// encoded key starting with '/', or a plain name of the given kind.
func parseStream(arg, kind string) (store.Key, error) {
	if arg == "" {
		return store.Key{}, fmt.Errorf("empty stream name")
	}
	if strings.HasPrefix(arg, "/") {
		return store.ParseKey(arg)
	}
	return store.NewKey(kind, arg, nil), nil
}

func streamFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "kind",
			Usage: "kind of the stream keys given by name (default from $AVESTREAM_KIND)",
		},
		&cli.IntFlag{
			Name:  "chunk-size",
			Value: stream.MaxChunkSize,
			Usage: "size of the stored chunks in bytes, must match between put and get",
		},
		&cli.IntFlag{
			Name:  "bwlimit",
			Usage: "bandwidth limit in Mbps (0 means unlimited)",
		},
	}
}

func bwlimit(c *cli.Context) int64 {
	return int64(c.Int("bwlimit")) * 1e6 / 8
}

func versionFlags() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "show version",
		Action: func(c *cli.Context) error {
			fmt.Println(version.UserAgent())
			return nil
		},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:                 "avestream",
		Usage:                "store byte streams of any size as chunks in a key-value store",
		Version:              version.Version(),
		EnableBashCompletion: true,
		Flags:                globalFlags(),
		Before:               setup,
		Commands: []*cli.Command{
			putFlags(),
			getFlags(),
			statFlags(),
			rmFlags(),
			versionFlags(),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}
