package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/trickstertwo/xbus"
	"github.com/trickstertwo/xbus/config"
	"github.com/trickstertwo/xbus/metrics"
)

type runOptions struct {
	*rootOptions
	tag         string
	level       string
	detectLevel bool
	watch       bool
	metricsAddr string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Publish every stdin line as an event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.tag, "tag", "t", "stdin", "Tag attached to every event")
	f.StringVarP(&opts.level, "level", "l", "info", "Level of every event")
	f.BoolVar(&opts.detectLevel, "detect-level", false, `Use a leading "LEVEL:" prefix as the event level`)
	f.BoolVarP(&opts.watch, "watch", "w", false, "Reload listeners when the config file changes")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func (o *runOptions) run(ctx context.Context, in io.Reader, out, errOut io.Writer) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	lvl, err := xbus.ParseLevel(o.level)
	if err != nil {
		return err
	}
	e, err := o.engine(out, errOut)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, e.Close()) }()
	diag := e.Diagnostics()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if o.watch && o.configPath != "" {
		go func() {
			if werr := config.Watch(ctx, o.configPath, e, diag); werr != nil {
				diag.Warn("config watch stopped", zap.Error(werr))
			}
		}()
	}
	if o.metricsAddr != "" {
		srv := metricsServer(o.metricsAddr, e)
		go func() {
			if serr := srv.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
				diag.Warn("metrics server stopped", zap.Error(serr))
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	log := e.Logger(o.tag)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case serr := <-scanErr:
					return serr
				default:
					return nil
				}
			}
			l, msg := lvl, line
			if o.detectLevel {
				l, msg = splitLevel(line, lvl)
			}
			log.Log(l, msg, nil)
		}
	}
}

// splitLevel parses lines like "warn: disk almost full". Lines without a
// recognised prefix keep fallback and are returned unchanged.
func splitLevel(line string, fallback xbus.Level) (xbus.Level, string) {
	head, rest, ok := strings.Cut(line, ":")
	if !ok {
		return fallback, line
	}
	lvl, err := xbus.ParseLevel(strings.TrimSpace(head))
	if err != nil {
		return fallback, line
	}
	return lvl, strings.TrimSpace(rest)
}

func metricsServer(addr string, e *xbus.Engine) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewCollector(e, ""),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
