package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Siddharthpatni/UI-Chatbot/pkg/conversation"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print a session transcript from a saved snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		loadPath, _ := cmd.Flags().GetString("load")
		sessionID, _ := cmd.Flags().GetInt64("session")
		format, _ := cmd.Flags().GetString("format")

		if loadPath == "" {
			return errors.New("--load is required")
		}

		store, err := conversation.LoadStoreFromFile(loadPath)
		if err != nil {
			return err
		}

		id := conversation.SessionID(sessionID)
		if sessionID == 0 {
			active, ok := store.ActiveSession()
			if !ok {
				return errors.New("snapshot has no active session, pass --session")
			}
			id = active
		}

		switch format {
		case "text":
			transcript, err := store.ExportText(id)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), transcript)
		case "json":
			b, err := store.ExportJSON(id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
		default:
			return errors.Errorf("unknown format: %s", format)
		}

		return nil
	},
}

func init() {
	exportCmd.Flags().String("load", "", "Snapshot file to read")
	exportCmd.Flags().Int64("session", 0, "Session ID (default: the snapshot's active session)")
	exportCmd.Flags().String("format", "text", "Output format (text, json)")
}
