package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/livedeck/responsync/internal/store"
)

var pendingCmd = &cobra.Command{
	Use:   "pending PARTICIPANT_ID",
	Short: "List queued responses for a participant",
	Args:  cobra.ExactArgs(1),
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

		recs, err := st.ListUnsynced(context.Background(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing pending responses: %v\n", err)
			os.Exit(1)
		}

		if len(recs) == 0 {
			fmt.Println("Queue is empty")
			return
		}

		for _, r := range recs {
			fmt.Printf("%s  slide=%s  created=%s  %s\n",
				r.ID, r.SlideID,
				r.CreatedAt.Format("2006-01-02 15:04:05"),
				r.Payload)
		}
		fmt.Printf("\n%d pending\n", len(recs))
	},
}
