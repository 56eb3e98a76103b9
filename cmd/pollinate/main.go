// MIT License
//
// Copyright (c) 2025 Mike Lane
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Command pollinate serves the GitHub webhook that turns !Pollinate
// commands into pull requests.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/mikelane/pollinate/internal/ai"
	"github.com/mikelane/pollinate/internal/cleanup"
	"github.com/mikelane/pollinate/internal/config"
	"github.com/mikelane/pollinate/internal/github"
	"github.com/mikelane/pollinate/internal/pipeline"
	"github.com/mikelane/pollinate/internal/webhook"
)

func main() {
	if err := newRootCommand(viper.New()).Execute(); err != nil {
		os.Exit(1)
	}
}

// flagBindings maps command-line flags onto config keys
var flagBindings = map[string]string{
	"config":       config.KeyConfigFile,
	"env-file":     config.KeyEnvFile,
	"host":         "server.host",
	"port":         "server.port",
	"log-level":    "logging.level",
	"trigger":      "pipeline.trigger",
	"default-base": "pipeline.default_base",
	"ai-endpoint":  "ai.endpoint",
	"ai-model":     "ai.model",
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	zapOpts := &zap.Options{}

	cmd := &cobra.Command{
		Use:          "pollinate",
		Short:        "Turn !Pollinate issue commands into generated pull requests",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			log.SetLogger(zap.New(loggerOptions(cfg, zapOpts, cmd.Flags())...))
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "path to a YAML config file")
	flags.String("env-file", ".env", "path to a dotenv file loaded before the environment")
	flags.String("host", "0.0.0.0", "address the webhook server binds to")
	flags.Int("port", 8080, "port the webhook server listens on")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("trigger", "!Pollinate", "command token recognized in issues and comments")
	flags.String("default-base", "main", "base branch when the payload names none")
	flags.String("ai-endpoint", ai.DefaultEndpoint, "chat completion endpoint")
	flags.String("ai-model", ai.DefaultModel, "model sent to the chat completion endpoint")

	goFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	zapOpts.BindFlags(goFlags)
	flags.AddGoFlagSet(goFlags)

	for name, key := range flagBindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}

	return cmd
}

// loggerOptions applies config-file logging settings unless the zap flags
// were given explicitly.
func loggerOptions(cfg *config.Config, zapOpts *zap.Options, flags *pflag.FlagSet) []zap.Opts {
	opts := []zap.Opts{zap.UseFlagOptions(zapOpts)}
	if !flags.Changed("zap-devel") && cfg.Logging.Development {
		opts = append(opts, zap.UseDevMode(true))
	}
	if !flags.Changed("zap-log-level") {
		if level, err := zapcore.ParseLevel(cfg.Logging.Level); err == nil {
			opts = append(opts, zap.Level(level))
		}
	}
	return opts
}

// run wires every component from cfg and blocks until a shutdown signal.
func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.Log.WithName("pollinate")
	ctx = log.IntoContext(ctx, logger)

	keyPEM, err := cfg.GitHub.PrivateKeyPEM()
	if err != nil {
		return err
	}
	clients, err := github.NewAppClientFactory(cfg.GitHub.AppID, keyPEM, cfg.GitHub.APIURL, nil)
	if err != nil {
		return fmt.Errorf("github app: %w", err)
	}

	temperature := cfg.AI.Temperature
	generator := ai.NewGenerator(ai.Config{
		Endpoint: cfg.AI.Endpoint,
		APIKey:   cfg.AI.APIKey,
		Options: ai.Options{
			Model:       cfg.AI.Model,
			Temperature: &temperature,
			MaxTokens:   cfg.AI.MaxTokens,
		},
	}, &http.Client{Timeout: cfg.AI.Timeout})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	limiter := webhook.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	deliveries := webhook.NewDeliveryCache(cfg.Webhook.DedupeWindow)

	orchestrator := pipeline.NewOrchestrator(
		webhook.NewVerifier(cfg.Webhook.Secret),
		generator,
		clients,
		pipeline.WithTrigger(cfg.Pipeline.Trigger),
		pipeline.WithDefaultBase(cfg.Pipeline.DefaultBase),
		pipeline.WithMetrics(pipeline.NewMetrics(registry)),
		pipeline.WithLimiter(limiter),
		pipeline.WithDeduper(deliveries),
	)

	server := webhook.NewServer(webhook.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, orchestrator, registry)

	scheduler := cleanup.NewScheduler(cfg.Cleanup.Interval,
		cleanup.Target{Name: "rate_limiters", Sweeper: limiter},
		cleanup.Target{Name: "installation_tokens", Sweeper: clients},
	)

	logger.Info("Starting pollinate",
		"addr", cfg.ServerAddr(),
		"appID", cfg.GitHub.AppID,
		"trigger", cfg.Pipeline.Trigger,
		"model", cfg.AI.Model,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		return scheduler.Start(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(err, "Pollinate stopped with error")
		return err
	}
	logger.Info("Pollinate stopped")
	return nil
}
