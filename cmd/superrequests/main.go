// Command superrequests sends a single HTTP request through an httpx.Session.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/danihodovic/superrequests/config"
	"github.com/danihodovic/superrequests/httpx"
	"github.com/danihodovic/superrequests/metrics"
	"github.com/danihodovic/superrequests/version"
)

const envPrefix = "SUPERREQUESTS"

// envKeys are the settings that can be overridden from SUPERREQUESTS_* variables.
var envKeys = []string{
	"base_url", "raise_for_status", "timeout", "user_agent", "max_redirects",
	"retry.disabled", "retry.connect", "retry.read", "retry.total",
	"retry.backoff_factor", "retry.backoff_max",
}

type globalFlags struct {
	configPath string
	baseURL    string
	timeout    time.Duration
	noTimeout  bool
	noRaise    bool
	noRetry    bool
	retries    int
	headers    []string
	logLevel   string
	metrics    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "superrequests",
		Short:         "Send HTTP requests with timeouts, retries and status checks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (yaml, toml or json)")
	pf.StringVar(&g.baseURL, "base-url", "", "base URL for relative paths")
	pf.DurationVar(&g.timeout, "timeout", httpx.DefaultSessionTimeout, "default request timeout")
	pf.BoolVar(&g.noTimeout, "no-timeout", false, "do not mount the timeout adapter (also disables retries)")
	pf.BoolVar(&g.noRaise, "no-raise-for-status", false, "do not fail on 4xx/5xx responses")
	pf.BoolVar(&g.noRetry, "no-retry", false, "disable automatic retries")
	pf.IntVar(&g.retries, "retries", 3, "total retry budget")
	pf.StringArrayVarP(&g.headers, "header", "H", nil, "extra header as 'Key: Value' (repeatable)")
	pf.StringVar(&g.logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")
	pf.BoolVar(&g.metrics, "metrics", false, "print request metrics to stderr on exit")

	root.AddCommand(
		newRequestCmd(&g, stdout, stderr),
		newMethodCmd(&g, http.MethodGet, stdout, stderr),
		newMethodCmd(&g, http.MethodHead, stdout, stderr),
		newVersionCmd(stdout),
	)
	return root
}

func newRequestCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "request METHOD URL",
		Short: "Send a request with any method",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, g, args[0], args[1], data, stdout, stderr)
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "request body")
	return cmd
}

func newMethodCmd(g *globalFlags, method string, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   strings.ToLower(method) + " URL",
		Short: "Send a " + method + " request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, g, method, args[0], "", stdout, stderr)
		},
	}
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			switch output {
			case "json":
				s, err := info.ToJSONIndent()
				if err != nil {
					return err
				}
				fmt.Fprintln(stdout, s)
			case "short":
				fmt.Fprintln(stdout, info.String())
			default:
				fmt.Fprintln(stdout, info.Text())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text, json, short)")
	return cmd
}

func newLogger(level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("app", version.Product).Logger(), nil
}

// sessionConfig layers the config file, the environment and changed flags.
func sessionConfig(cmd *cobra.Command, g *globalFlags, log zerolog.Logger) (httpx.Config, error) {
	loaded, err := config.Load[httpx.Settings](g.configPath,
		config.WithEnv[httpx.Settings](envPrefix),
		config.WithEnvKeys[httpx.Settings](envKeys...),
		config.WithDecodeHook[httpx.Settings](config.SecondsAsDuration()),
		config.WithLogger[httpx.Settings](log),
	)
	if err != nil {
		return httpx.Config{}, err
	}
	cfg := loaded.Get().Config()

	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseURL = g.baseURL
	}
	if flags.Changed("timeout") {
		cfg.Timeout = g.timeout
	}
	if g.noTimeout {
		cfg.Timeout = 0
	}
	if g.noRaise {
		cfg.RaiseForStatus = false
	}
	if flags.Changed("retries") && cfg.Retry != nil {
		cfg.Retry.Total = g.retries
	}
	if g.noRetry {
		cfg.Retry = nil
	}
	for _, h := range g.headers {
		k, v, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return httpx.Config{}, fmt.Errorf("invalid header %q, want 'Key: Value'", h)
		}
		cfg.DefaultHeaders.Set(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	cfg.Logger = log
	return cfg, nil
}

func run(cmd *cobra.Command, g *globalFlags, method, target, data string, stdout, stderr io.Writer) error {
	log, err := newLogger(g.logLevel, stderr)
	if err != nil {
		return err
	}
	cfg, err := sessionConfig(cmd, g, log)
	if err != nil {
		log.Error().Err(err).Msg("load configuration")
		return err
	}
	if g.metrics {
		reg := prometheus.NewRegistry()
		collector := metrics.New(version.Product)
		reg.MustRegister(collector)
		cfg.Middleware = append(cfg.Middleware, collector.Middleware())
		defer func() {
			if merr := writeMetrics(stderr, reg); merr != nil {
				log.Warn().Err(merr).Msg("write metrics")
			}
		}()
	}

	s, err := httpx.NewWithConfig(cfg)
	if err != nil {
		log.Error().Err(err).Msg("create session")
		return err
	}
	defer s.Close()

	var opts []httpx.RequestOption
	if data != "" {
		opts = append(opts, httpx.WithBodyBytes([]byte(data)))
	}
	resp, err := s.Request(cmd.Context(), method, target, opts...)
	if resp != nil {
		defer resp.Body.Close()
		fmt.Fprintf(stderr, "%s %s\n", resp.Proto, resp.Status)
		if _, cerr := io.Copy(stdout, resp.Body); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		var he *httpx.Error
		if errors.As(err, &he) {
			log.Warn().Int("status", he.StatusCode).Str("url", he.URL).Msg("request failed")
		} else {
			log.Error().Err(err).Msg("request failed")
		}
		return err
	}
	return nil
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
