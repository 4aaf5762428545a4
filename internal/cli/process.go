package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"docproc/internal/app"
)

var processCmd = &cobra.Command{
	Use:   "process [document-id]",
	Short: "Run the processing pipeline for a document",
	Long:  `Downloads, extracts, splits, embeds and persists a document in this process, bypassing the queue.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runProcess,
}

// processJSON prints the result as JSON.
var processJSON bool

func init() {
	processCmd.Flags().BoolVar(&processJSON, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	if processingService == nil {
		return errors.New("processing service not configured")
	}

	result, err := processingService.ProcessByID(commandContext(cmd), args[0])
	if result != nil {
		if printErr := printResult(cmd, result); printErr != nil {
			return printErr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to process document: %w", err)
	}
	return nil
}

func printResult(cmd *cobra.Command, result *app.ProcessingResult) error {
	if processJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	cmd.Printf("Document: %s\n\n", result.DocumentID)
	cmd.Printf("  Status:    %s\n", result.Status)
	cmd.Printf("  Stage:     %s\n", result.Stage)
	cmd.Printf("  Chunks:    %d\n", result.ChunkCount)
	cmd.Printf("  Persisted: %d\n", result.PersistedChunks)
	cmd.Printf("  Failed:    %d\n", result.FailedChunks)
	if v := result.Verification; v != nil {
		cmd.Printf("  Verified:  %d/%d\n", v.Persisted, v.Expected)
	}
	if result.Error != "" {
		cmd.Printf("  Error:     %s\n", result.Error)
	}
	return nil
}
