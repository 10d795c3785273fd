package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/bitfsorg/selfenc-go/metrics"
	"github.com/bitfsorg/selfenc-go/storage"
)

const shutdownTimeout = 10 * time.Second

func runServe(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("serve", stderr)
	configPath := fs.String("config", "", "configuration file")
	listen := fs.String("listen", "", "listen address (overrides the configuration)")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}

	e, err := openEnv(ctx, *configPath)
	if err != nil {
		return err
	}
	defer e.Close()

	addr := e.cfg.ListenAddr
	if *listen != "" {
		addr = *listen
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           newServerHandler(e.store, e.registry, e.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	fmt.Fprintf(stdout, "serving %s store on %s\n", e.cfg.Backend, ln.Addr())
	e.logger.WithFields(logrus.Fields{
		"addr":    ln.Addr().String(),
		"backend": e.cfg.Backend,
	}).Info("chunk server started")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	e.logger.Info("chunk server stopped")
	return nil
}

// newServerHandler routes the chunk endpoints and /metrics.
func newServerHandler(store storage.Store, gatherer prometheus.Gatherer, logger logrus.FieldLogger) http.Handler {
	r := mux.NewRouter()
	storage.NewHandler(store, logger).RegisterRoutes(r)
	r.Handle("/metrics", metrics.Handler(gatherer)).Methods(http.MethodGet)
	return r
}
