package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/livedeck/responsync/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local queue and session state",
	Long: `Display the sessions remembered in the local store and how many
responses are still queued for each.`,
	Run: func(cmd *cobra.Command, args []string) {
		path := viper.GetString("store")

		if !queueExists(path) {
			fmt.Printf("No local queue at %s (nothing captured yet)\n", path)
			return
		}

		st, err := store.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		ctx := context.Background()

		sessions, err := st.ListSessions(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing sessions: %v\n", err)
			os.Exit(1)
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions recorded")
			return
		}

		for _, s := range sessions {
			pending, err := st.ListUnsynced(ctx, s.ParticipantID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error listing pending responses: %v\n", err)
				os.Exit(1)
			}

			state := "inactive"
			if s.IsActive {
				state = "active"
			}
			fmt.Printf("%s  participant=%s  joined=%s  %s  pending=%d\n",
				s.SessionID, s.ParticipantID,
				s.JoinedAt.Format("2006-01-02 15:04:05"),
				state, len(pending))
		}
	},
}
