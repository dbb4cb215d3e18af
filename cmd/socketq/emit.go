package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	emitURI      string
	emitEvent    string
	emitData     string
	emitPriority int
	emitTimeout  time.Duration
	emitLinger   time.Duration
)

func init() {
	rootCmd.AddCommand(emitCmd)
	emitCmd.Flags().StringVar(&emitURI, "uri", "", "server URI (overrides client.uri)")
	emitCmd.Flags().StringVarP(&emitEvent, "event", "e", "chat", "event name")
	emitCmd.Flags().StringVarP(&emitData, "data", "d", "", "payload; sent as JSON when it parses, as a string otherwise")
	emitCmd.Flags().IntVarP(&emitPriority, "priority", "p", 2, "replay priority, lower first")
	emitCmd.Flags().DurationVar(&emitTimeout, "timeout", 10*time.Second, "give up if not connected by then")
	emitCmd.Flags().DurationVar(&emitLinger, "linger", 250*time.Millisecond, "wait after delivery before disconnecting")
}

var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Queue one event, connect, and deliver it",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, clientOpts, err := newManager()
		if err != nil {
			return err
		}
		defer m.Disconnect()

		// Emitted before Connect, so it travels through the offline buffer.
		if err := m.Emit(eventName(emitEvent), decodePayload(emitData), emitPriority); err != nil {
			return err
		}

		if _, err := m.Connect(resolveURI(emitURI), clientOpts...); err != nil {
			return err
		}

		deadline := time.Now().Add(emitTimeout)
		for !m.IsConnected() || m.Pending() > 0 {
			if time.Now().After(deadline) {
				return fmt.Errorf("emit: not delivered within %s", emitTimeout)
			}
			time.Sleep(20 * time.Millisecond)
		}

		time.Sleep(emitLinger)
		return nil
	},
}

func decodePayload(raw string) interface{} {
	if raw == "" {
		return nil
	}
	var v interface{}
	if json.Valid([]byte(raw)) && json.Unmarshal([]byte(raw), &v) == nil {
		return v
	}
	return raw
}
