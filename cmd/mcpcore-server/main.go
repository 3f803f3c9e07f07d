// Command mcpcore-server is a reference host for the core: it wires one
// transport at a time (stdio, streamable HTTP, or SSE) on top of the same
// dispatcher and a handful of demo tools, so the wire protocol can be
// exercised end to end without a real integration behind it.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"goa.design/clue/log"

	"goa.design/mcpcore/internal/obs"
	"goa.design/mcpcore/mcp/dispatcher"
	"goa.design/mcpcore/mcp/transport/httpstream"
	"goa.design/mcpcore/mcp/transport/sse"
	"goa.design/mcpcore/mcp/transport/stdio"
)

var (
	addrF  string
	dbgF   bool
	nameF  string
	verF   string
	rootCmd = &cobra.Command{
		Use:   "mcpcore-server",
		Short: "reference host for the mcpcore JSON-RPC dispatcher",
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&addrF, "addr", "localhost:8090", "listen address for http/sse commands")
	rootCmd.PersistentFlags().BoolVar(&dbgF, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&nameF, "name", "mcpcore-server", "serverInfo.name reported on initialize")
	rootCmd.PersistentFlags().StringVar(&verF, "version", "dev", "serverInfo.version reported on initialize")
	rootCmd.AddCommand(stdioCmd, httpCmd, sseCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newContext() context.Context {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}
	return ctx
}

func newDispatcher(ctx context.Context) *dispatcher.Dispatcher {
	provider := obs.NewClueProvider()
	d := dispatcher.New(ctx, dispatcher.ServerInfo{Name: nameF, Version: verF}, &provider)
	registerDemoTools(d)
	return d
}

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "serve one connection over stdin/stdout, line-delimited JSON-RPC",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := newContext()
		d := newDispatcher(ctx)
		provider := obs.NewClueProvider()
		tr := stdio.New(os.Stdin, os.Stdout, d, &provider)
		log.Print(ctx, log.KV{K: "transport", V: "stdio"})
		return tr.Run(ctx)
	},
}

var httpCmd = &cobra.Command{
	Use:   "http",
	Short: "serve the single-POST streamable HTTP transport",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := newContext()
		d := newDispatcher(ctx)
		provider := obs.NewClueProvider()
		tr := httpstream.New(d, &provider, httpstream.Config{})
		return runServer(ctx, "http", tr.Server(addrF))
	},
}

var sseCmd = &cobra.Command{
	Use:   "sse",
	Short: "serve the dual GET/POST Server-Sent Events transport",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := newContext()
		d := newDispatcher(ctx)
		provider := obs.NewClueProvider()
		tr := sse.New(d, &provider, sse.Config{})
		mux := http.NewServeMux()
		tr.Mount(mux)
		srv := &http.Server{Addr: addrF, Handler: mux, ReadHeaderTimeout: 60 * time.Second}
		return runServer(ctx, "sse", srv)
	},
}

// runServer starts srv and blocks until SIGINT/SIGTERM, then shuts it down
// with a bounded grace period.
func runServer(ctx context.Context, label string, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() {
		log.Print(ctx, log.KV{K: "transport", V: label}, log.KV{K: "addr", V: srv.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case sig := <-sigc:
		log.Printf(ctx, "exiting (%v)", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
