package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/rtcsdk/ddns"
)

// config is filled from flags, ALIDDNS_* environment variables and an optional config file, in that order of precedence.
var config = struct {
	ConfigFile   string
	CLI          string
	Region       string
	Domain       string
	RR           string
	Ping         string
	Provider     string
	KeyFile      string
	IPSource     string
	IPServices   []string
	Iface        string
	IP           string
	Interval     time.Duration
	PingInterval time.Duration
	Timeout      time.Duration
	MetricsAddr  string
	LogLevel     string
	Once         bool
}{}

var logger = logrus.New()

var rootCommand = &cobra.Command{
	Use:          "aliddns",
	Short:        "update domain record",
	Long:         `Keep one DNS A record pointed at the public IP address of this host.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		return run(cmd.Context())
	},
}

func init() {
	f := rootCommand.Flags()
	f.String("config", "", "optional config file (yaml, toml or json)")
	f.String("cli", ddns.DefaultAliyunCLI, "aliyun cli path")
	f.String("region", ddns.DefaultAliyunRegion, "aliyun region")
	f.String("domain", "", "target domain, for example: example.com")
	f.String("rr", "", "host record to update, for example: www")
	f.String("ping", "", "target url to ping, for example: udp://127.0.0.1:5000?line=abc")
	f.String("provider", "aliyun", "DNS provider: aliyun or cloudflare")
	f.String("key-file", filepath.Join(os.Getenv("HOME"), ".cloudflare"), "path to cloudflare API token file")
	f.String("ip-source", "web", "public IP source: web, opendns, iface or static")
	f.StringSlice("ip-service", []string{ddns.DefaultIPService}, "IP echo service URL, repeat for a quorum of up to three")
	f.String("iface", "", "interface to read the address from when ip-source is iface")
	f.String("ip", "", "address to set when ip-source is static")
	f.Duration("interval", ddns.DefaultInterval, "duration to wait between IP checks")
	f.Duration("ping-interval", ddns.DefaultInterval, "duration to wait between keepalive pings")
	f.Duration("timeout", ddns.DefaultTimeout, "timeout for each provider or IP lookup call")
	f.String("metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090")
	f.String("log-level", "info", "log level: debug, info, warn or error")
	f.Bool("once", false, "reconcile once and exit")

	if err := viper.BindPFlags(f); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("ALIDDNS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCommand.ExecuteContext(ctx)
	stop()

	fmt.Printf("final: [%v]\n", err)
	if err != nil {
		os.Exit(1)
	}
}

func loadConfig() error {
	config.ConfigFile = viper.GetString("config")
	if config.ConfigFile != "" {
		viper.SetConfigFile(config.ConfigFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	config.CLI = viper.GetString("cli")
	config.Region = viper.GetString("region")
	config.Domain = viper.GetString("domain")
	config.RR = viper.GetString("rr")
	config.Ping = viper.GetString("ping")
	config.Provider = viper.GetString("provider")
	config.KeyFile = viper.GetString("key-file")
	config.IPSource = viper.GetString("ip-source")
	config.IPServices = viper.GetStringSlice("ip-service")
	config.Iface = viper.GetString("iface")
	config.IP = viper.GetString("ip")
	config.Interval = viper.GetDuration("interval")
	config.PingInterval = viper.GetDuration("ping-interval")
	config.Timeout = viper.GetDuration("timeout")
	config.MetricsAddr = viper.GetString("metrics-addr")
	config.LogLevel = viper.GetString("log-level")
	config.Once = viper.GetBool("once")

	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "01-02T15:04:05",
	})
	return validate()
}

func run(ctx context.Context) error {
	logger.Info("running...")
	logger.Debugf("config is valid: %+v", config)

	// a bad ping url must stop us before anything starts
	var target *ddns.PingTarget
	if config.Ping != "" {
		t, err := ddns.ParsePingURL(config.Ping)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		target = &t
	}

	resolver, err := newResolver()
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	store, err := providerOption()
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	client, err := ddns.New(config.Domain, config.RR,
		store,
		ddns.UsingResolver(resolver),
		ddns.WithLogger(logger),
		ddns.WithTimeout(config.Timeout),
	)
	if err != nil {
		return fmt.Errorf("error creating ddns.Client: %w", err)
	}

	if config.Once {
		res, err := client.Reconcile(ctx)
		if err != nil {
			return err
		}
		logger.Infof("domain record [%s] %s: [%s]", config.RR, res.Outcome, res.IP)
		return nil
	}

	// the metrics address is checked here so that a bad one fails startup
	var metrics net.Listener
	if config.MetricsAddr != "" {
		if metrics, err = net.Listen("tcp", config.MetricsAddr); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		logger.Infof("serving metrics on %s", metrics.Addr())
	}

	g, ctx := errgroup.WithContext(ctx)

	if target != nil {
		pinger, err := ddns.ListenPinger(*target, logger.WithField("task", "ping"))
		if err != nil {
			if metrics != nil {
				metrics.Close()
			}
			return fmt.Errorf("run: %w", err)
		}
		logger.Infof("pinging %s from %s", target.Addr(), pinger.LocalAddr())
		g.Go(func() error {
			return pinger.Run(ctx, config.PingInterval)
		})
	}

	if metrics != nil {
		g.Go(func() error {
			serveMetrics(ctx, metrics)
			return nil
		})
	}

	g.Go(func() error {
		return client.Run(ctx, config.Interval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// serveMetrics serves /metrics on ln until ctx is done.
// A serve failure is logged and leaves the other tasks running.
func serveMetrics(ctx context.Context, ln net.Listener) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", ddns.MetricsHandler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("metrics server stopped")
	}
}

func newResolver() (ddns.Resolver, error) {
	switch config.IPSource {
	case "web", "":
		return ddns.WebResolver(config.IPServices...), nil
	case "opendns":
		return ddns.OpenDNSResolver(""), nil
	case "iface":
		return ddns.InterfaceResolver(config.Iface), nil
	case "static":
		return ddns.FromString(config.IP)
	default:
		return nil, fmt.Errorf("unknown ip source %q", config.IPSource)
	}
}

func validate() error {
	if config.Domain == "" {
		return errors.New("domain cannot be empty")
	}
	if !strings.Contains(config.Domain, ".") {
		return errors.New("domain must have at least one dot")
	}
	if config.RR == "" {
		return errors.New("rr cannot be empty")
	}
	return nil
}
