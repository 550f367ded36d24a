// Command chandash serves the channel analytics dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paulmach/orb/geojson"

	"github.com/wdm0006/chandash/internal/config"
	"github.com/wdm0006/chandash/internal/logging"
	"github.com/wdm0006/chandash/internal/proxy"
	"github.com/wdm0006/chandash/internal/server"
	"github.com/wdm0006/chandash/pkg/chain"
	"github.com/wdm0006/chandash/pkg/geo"
	p "github.com/wdm0006/chandash/pkg/pipeline"
	"github.com/wdm0006/chandash/pkg/source"
	"github.com/wdm0006/chandash/pkg/views"
)

var version = "0.1.0-dev"

func main() {
	configPath := flag.String("config", "", "Config file or directory containing chandash.{yaml,toml,json}")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println("chandash", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := serve(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func serve(cfg config.Config, log *slog.Logger) error {
	client := &http.Client{Timeout: cfg.Proxy.Timeout}
	opts := []p.Option{p.WithLogger(log), p.WithLoader(source.NewLoader(client, log))}
	if cfg.StrictShapes {
		opts = append(opts, p.WithStrictShapes())
	}
	pl := p.NewPipeline(opts...)

	// The dataset and the country shapes are independent; load them together.
	var fc *geojson.FeatureCollection
	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		return pl.Load(gctx, cfg.Data.Path, cfg.Data.Format)
	})
	g.Go(func() error {
		if cfg.Geo.Path == "" {
			return nil
		}
		var err error
		fc, err = geo.LoadFeatures(gctx, cfg.Geo.Path)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if cfg.Data.Presets != "" {
		cf, err := chain.Load(cfg.Data.Presets)
		if err != nil {
			return err
		}
		if err := chain.Install(pl, cf.Operations); err != nil {
			return err
		}
		log.Info("preset operations installed", "path", cfg.Data.Presets, "operations", pl.Names())
	}

	var dopts []views.Option
	if fc != nil {
		dopts = append(dopts, views.WithFeatures(fc, cfg.Geo.CountryProperty))
	}
	dash := views.NewDashboard(pl, dopts...)

	px := proxy.New(client, proxy.Options{
		Timeout:  cfg.Proxy.Timeout,
		Rate:     cfg.Proxy.Rate,
		Burst:    cfg.Proxy.Burst,
		MaxBytes: cfg.Proxy.MaxBytes,
	}, log)
	srv := server.New(dash, px, server.Options{
		StaticDir:      cfg.Server.StaticDir,
		DataPath:       cfg.Data.Path,
		DataFormat:     cfg.Data.Format,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Server.Addr, "records", len(pl.Data()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
