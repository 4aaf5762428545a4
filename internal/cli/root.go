package cli

import (
	"context"

	"github.com/spf13/cobra"

	"docproc/internal/app"
	"docproc/internal/model"
)

// DocumentService queues existing documents for processing.
type DocumentService interface {
	Reprocess(ctx context.Context, id string) (*model.Document, error)
}

// ProcessingService runs the pipeline in the current process.
type ProcessingService interface {
	ProcessByID(ctx context.Context, documentID string) (*app.ProcessingResult, error)
}

var (
	documentService   DocumentService
	processingService ProcessingService
)

var rootCmd = &cobra.Command{
	Use:           "docctl",
	Short:         "Operate the document processing pipeline",
	Long:          `Queue documents for the worker or run the processing pipeline synchronously.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetServices installs the services used by the commands.
func SetServices(documents DocumentService, processing ProcessingService) {
	documentService = documents
	processingService = processing
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
