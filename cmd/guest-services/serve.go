package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/nhle/guest-services/internal/httpapi"
	"github.com/nhle/guest-services/internal/realtime"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the viewer's feed over HTTP with a websocket change relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		opts := []httpapi.Option{httpapi.WithLogger(e.logger.With("component", "http"))}
		if e.subscriber != nil {
			opts = append(opts, httpapi.WithWebsocket(realtime.NewWebsocketHandler(e.subscriber, e.logger.With("component", "ws"))))
		}
		srv := httpapi.NewServer(e.session, opts...)

		var g run.Group

		// listen for signals
		{
			signals := make(chan os.Signal, 1)
			stop := make(chan struct{})
			signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
			g.Add(func() error {
				select {
				case sig := <-signals:
					e.logger.Info("received signal", "signal", sig)
				case <-stop:
				}
				return nil
			}, func(error) {
				signal.Stop(signals)
				close(stop)
			})
		}
		{
			ctx, cancel := context.WithCancel(cmd.Context())
			g.Add(func() error {
				if err := e.session.Start(ctx); err != nil {
					return err
				}
				<-ctx.Done()
				return nil
			}, func(error) {
				cancel()
			})
		}
		{
			ctx, cancel := context.WithCancel(cmd.Context())
			g.Add(func() error {
				return srv.Run(ctx, serveAddr)
			}, func(error) {
				cancel()
			})
		}

		if err := g.Run(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	rootCmd.AddCommand(serveCmd)
}
