package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/livedeck/responsync/internal/connectivity"
	"github.com/livedeck/responsync/internal/engine"
	"github.com/livedeck/responsync/internal/remote"
)

var runCmd = &cobra.Command{
	Use:   "run SESSION_ID PARTICIPANT_ID",
	Short: "Join a session and keep its queue synchronized",
	Long: `Join (or resume) a session and run the background synchronizer.

The engine first tries to restore a previously remembered session from
the local store, validating it against the remote API. Answers are read
as JSON objects from stdin, one per line:

  {"slide_id": "s-12", "payload": {"choice": 2}}

Each line is captured durably and delivered when connectivity allows.
Runs until interrupted.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		base := viper.GetString("remote")
		if base == "" {
			fmt.Fprintf(os.Stderr, "Error: --remote (or the remote config key) is required\n")
			os.Exit(1)
		}

		client, err := remote.NewHTTP(base, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		monitor := connectivity.NewPoller(connectivity.DialProber(probeAddr(base)), nil)
		monitor.Start()
		defer monitor.Stop()

		cfg := engine.DefaultConfig()
		cfg.StorePath = viper.GetString("store")

		eng, err := engine.New(client, monitor, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.Close()

		ctx := context.Background()

		if err := eng.RestoreOnStartup(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: restore failed: %v\n", err)
		}

		if err := eng.InitializeForSession(ctx, args[0], args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error joining session: %v\n", err)
			os.Exit(1)
		}

		go readAnswers(ctx, eng, args[1])

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		fmt.Printf("Shutting down (status: %s)\n", eng.Status())
	},
}

// readAnswers feeds stdin lines through the write path.
func readAnswers(ctx context.Context, eng *engine.Engine, participantID string) {
	dec := json.NewDecoder(os.Stdin)
	for {
		var in struct {
			SlideID string          `json:"slide_id"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := dec.Decode(&in); err != nil {
			return
		}

		if err := eng.SaveResponse(ctx, participantID, in.SlideID, in.Payload); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: answer not captured: %v\n", err)
		}
	}
}

// probeAddr derives a host:port connectivity probe target from the API
// base URL.
func probeAddr(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "1.1.1.1:443"
	}
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "http" {
		return u.Host + ":80"
	}
	return u.Host + ":443"
}
