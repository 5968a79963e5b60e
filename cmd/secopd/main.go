// Command secopd runs an example SECoP node: it loads a YAML node
// configuration, builds the configured modules from the in-process
// demo class registry, starts each module's poller, and serves clients
// over raw TCP, WebSocket and a read-only admin HTTP surface
// (SPEC_FULL.md §9-§10).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vitalybin/frappy/internal/adminhttp"
	"github.com/vitalybin/frappy/internal/demo"
	"github.com/vitalybin/frappy/internal/transport/tcp"
	"github.com/vitalybin/frappy/internal/transport/ws"
	"github.com/vitalybin/frappy/pkg/secop/config"
	"github.com/vitalybin/frappy/pkg/secop/dispatch"
	"github.com/vitalybin/frappy/pkg/secop/module"
	"github.com/vitalybin/frappy/pkg/secop/poller"
	"github.com/vitalybin/frappy/pkg/secop/secoperr"
	"github.com/vitalybin/frappy/pkg/secop/seclog"
)

func main() {
	configPath := flag.String("config", "config/demo-node.yaml", "path to the node configuration file")
	tcpAddr := flag.String("tcp", ":10767", "address for the raw SECoP line-protocol listener")
	httpAddr := flag.String("http", ":10768", "address for the admin HTTP surface (healthz, describe, metrics, websocket)")
	devLog := flag.Bool("dev-log", false, "use zap's human-readable development encoder instead of JSON")
	flag.Parse()

	logger, err := buildLogger(*devLog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "building logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	seclog.SetBase(logger)
	log := seclog.Named("secopd")

	shutdownTracing, err := setupTracing()
	if err != nil {
		log.Error("tracing setup failed, continuing without spans", zap.Error(err))
	} else {
		defer shutdownTracing(context.Background())
	}

	if err := run(*configPath, *tcpAddr, *httpAddr, log); err != nil {
		log.Error("fatal startup error", zap.Error(err))
		os.Exit(1)
	}
}

func buildLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func setupTracing() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func run(configPath, tcpAddr, httpAddr string, log seclog.Logger) error {
	node, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.Info("loaded node configuration", zap.String("equipment_id", node.EquipmentID), zap.Int("modules", len(node.Modules)))

	disp := dispatch.New(dispatch.NodeInfo{
		EquipmentID: node.EquipmentID,
		Description: node.Description,
		Firmware:    node.Firmware,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := buildAndStartModules(ctx, node, disp, log); err != nil {
		return err
	}

	listener := tcp.New(tcpAddr, disp)
	go func() {
		if err := listener.Serve(ctx); err != nil {
			log.Error("tcp listener stopped", zap.Error(err))
		}
	}()

	bridge := ws.New(disp)
	admin := adminhttp.New(disp, bridge)
	httpServer := &http.Server{Addr: httpAddr, Handler: admin.Handler()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("admin http server stopped", zap.Error(err))
		}
	}()
	log.Info("node started", zap.String("tcp_addr", tcpAddr), zap.String("http_addr", httpAddr))

	waitForSignal()
	log.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildAndStartModules constructs every configured module via the demo
// class registry, runs earlyInit/initModule concurrently across all of
// them, then starts each module's poller (spec.md §5 "construction
// acquires no external resource; earlyInit/initModule run synchronously
// before any poller starts"). Any ConfigError/ProgrammingError aborts
// startup entirely (spec.md §7).
func buildAndStartModules(ctx context.Context, node *config.Node, disp *dispatch.Dispatcher, log seclog.Logger) error {
	built := make([]*module.Module, 0, len(node.Modules))
	for name, spec := range node.Modules {
		m, err := demo.Build(spec.Class, name, seclog.Named("module"), spec.Config, disp)
		if err != nil {
			if secoperr.IsStartupFatal(err) {
				return fmt.Errorf("building module %q: %w", name, err)
			}
			return err
		}
		disp.Register(m)
		built = append(built, m)
	}

	g, _ := errgroup.WithContext(ctx)
	for _, m := range built {
		m := m
		g.Go(func() error {
			module.RunEarlyInit(m)
			module.RunInitModule(m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	scheduler := poller.NewScheduler(4)
	var schedulerStarted bool
	for _, m := range built {
		switch m.PollerClass {
		case module.PollerGeneric:
			m.WriteInitParams()
			scheduler.Register(m)
			if !schedulerStarted {
				go scheduler.Run(ctx)
				schedulerStarted = true
			}
			log.Info("module registered with generic scheduler", zap.String("module", m.Name))
		default:
			started := make(chan struct{})
			poller.RunBasic(ctx, m, func() { close(started) })
			select {
			case <-started:
				log.Info("module poller started", zap.String("module", m.Name))
			case <-time.After(2 * time.Second):
				log.Warn("module poller did not confirm startup in time", zap.String("module", m.Name))
			}
		}
	}
	return nil
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
