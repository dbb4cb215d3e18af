package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kleeedolinux/socketq/debug"
	"github.com/kleeedolinux/socketq/socket"
)

var (
	listenURI    string
	listenEvents []string
	listenOnce   bool
)

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().StringVar(&listenURI, "uri", "", "server URI (overrides client.uri)")
	listenCmd.Flags().StringSliceVarP(&listenEvents, "event", "e", []string{"system"}, "events to print, as name or name:priority")
	listenCmd.Flags().BoolVar(&listenOnce, "once", false, "exit after every event fired once")
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print events received from a server, one JSON line each",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, clientOpts, err := newManager()
		if err != nil {
			return err
		}
		defer m.Disconnect()

		bindings, err := parseEventBindings(listenEvents)
		if err != nil {
			return err
		}

		out := &lineWriter{w: cmd.OutOrStdout()}
		pending := sync.WaitGroup{}
		for _, b := range bindings {
			event := b.event
			if listenOnce {
				pending.Add(1)
				m.Once(event, func(data interface{}) {
					out.print(event, data)
					pending.Done()
				}, b.priority)
				continue
			}
			m.On(event, func(data interface{}) {
				out.print(event, data)
			}, b.priority)
		}

		if _, err := m.Connect(resolveURI(listenURI), clientOpts...); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if listenOnce {
			done := make(chan struct{})
			go func() {
				pending.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		}

		<-ctx.Done()
		return nil
	},
}

// lineWriter serializes output from concurrent handlers.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lineWriter) print(event socket.Event, data interface{}) {
	line, err := json.Marshal(map[string]interface{}{"event": event, "data": data})
	if err != nil {
		logger := debug.Logger()
		logger.Warn().Err(err).Str("event", string(event)).Msg("cannot encode event")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, string(line))
}
