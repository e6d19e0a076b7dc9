// Package cmd assembles the vizierctl command tree.
package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/vizierdb/vizier/src/internal/cmdutil"
	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/serviceenv"
	"github.com/vizierdb/vizier/src/server/vizier/cmds"
	"go.uber.org/zap"
)

// metricsEnv serves the prometheus registry for as long as the wrapped environment is open.
type metricsEnv struct {
	serviceenv.ServiceEnv
	server *http.Server
}

func (e *metricsEnv) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(errors.EnsureStack(e.server.Shutdown(ctx)), e.ServiceEnv.Close())
}

func serveMetrics(ctx context.Context, env serviceenv.ServiceEnv, addr string) (serviceenv.ServiceEnv, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen for metrics on %s", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "metrics server exited", zap.Error(err))
		}
	}()
	log.Info(ctx, "serving metrics", zap.String("addr", lis.Addr().String()))
	return &metricsEnv{ServiceEnv: env, server: server}, nil
}

// VizierctlCmd returns the root vizierctl command.
func VizierctlCmd(ctx context.Context) *cobra.Command {
	var configFile, logLevel, metricsAddr string
	root := &cobra.Command{
		Use: "vizierctl",
		Long: `Manage vizier projects: workflows of data-processing modules with tracked
provenance, versioned in branches.

Storage and execution are configured with VIZIER_* environment variables or a
YAML file of the same keys given with --config.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML file of VIZIER_* configuration keys")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides VIZIER_LOG_LEVEL)")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address while the command runs (overrides VIZIER_METRICS_ADDR)")
	root.PersistentFlags().BoolVar(&cmdutil.PrintErrorStacks, "stacks", false, "Print stack traces with errors")

	openEnv := func(ctx context.Context) (serviceenv.ServiceEnv, error) {
		var decoders []cmdutil.Decoder
		if configFile != "" {
			decoders = append(decoders, cmdutil.YAMLFileDecoder(configFile))
		}
		config, err := serviceenv.NewConfiguration(decoders...)
		if err != nil {
			return nil, err
		}
		if logLevel != "" {
			config.LogLevel = logLevel
		}
		if metricsAddr != "" {
			config.MetricsAddr = metricsAddr
		}
		log.InitLogger(config.LogLevel)
		ctx = log.AddLogger(ctx)
		env, err := serviceenv.InitServiceEnv(ctx, config)
		if err != nil {
			return nil, err
		}
		if config.MetricsAddr == "" {
			return env, nil
		}
		wrapped, err := serveMetrics(ctx, env, config.MetricsAddr)
		if err != nil {
			env.Close() //nolint:errcheck
			return nil, err
		}
		return wrapped, nil
	}
	root.AddCommand(cmds.Cmds(ctx, openEnv)...)

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the vizierctl version.",
		Run: cmdutil.RunFixedArgs(0, func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
			return nil
		}),
	}
	root.AddCommand(version)
	return root
}

// Version is set at link time.
var Version = "dev"
