package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kleeedolinux/socketq/debug"
	"github.com/kleeedolinux/socketq/socket"
)

var (
	serveAddr   string
	serveRelays []string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().StringSliceVar(&serveRelays, "relay", []string{"chat"}, "events rebroadcast to every connected socket")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference socket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := cfg.Server.serverOptions()
		if err != nil {
			return err
		}
		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		logger := debug.Logger().With().Str("component", "serve").Logger()
		srv := socket.NewServer(append(opts, socket.WithServerLogger(logger))...)

		srv.HandleFunc(socket.EventConnect, func(s socket.Socket, _ interface{}) {
			logger.Info().Str("socket", s.ID()).Int("online", srv.Count()).Msg("client connected")
			s.Send("system", map[string]interface{}{
				"message": "welcome",
				"id":      s.ID(),
				"online":  srv.Count(),
			})
		})
		srv.HandleFunc(socket.EventDisconnect, func(s socket.Socket, reason interface{}) {
			logger.Info().Str("socket", s.ID()).Interface("reason", reason).Msg("client disconnected")
		})
		for _, name := range serveRelays {
			event := socket.Event(name)
			srv.HandleFunc(event, func(s socket.Socket, data interface{}) {
				logger.Debug().Str("socket", s.ID()).Str("event", string(event)).Msg("relay")
				srv.Broadcast(event, data)
			})
		}

		path := "/" + strings.Trim(cfg.Server.Path, "/")
		mux := http.NewServeMux()
		mux.HandleFunc(path, srv.HandleHTTP)
		mux.HandleFunc(path+"/", srv.HandleHTTP)

		httpServer := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", addr).Str("path", path).Msg("listening")
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("closing sockets")
		}
		return httpServer.Shutdown(shutdownCtx)
	},
}
