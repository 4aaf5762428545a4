package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [document-id]",
	Short: "Publish a processing job for an existing document",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	doc, err := documentService.Reprocess(commandContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("failed to enqueue document: %w", err)
	}

	cmd.Printf("Queued document %s (%s)\n", doc.ID, doc.Filename)
	cmd.Printf("  Status: %s\n", doc.Status)
	return nil
}
