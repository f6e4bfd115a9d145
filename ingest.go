package main

import (
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Extract, chunk and index files",
	Long: `Extracts the content of each file, splits it into chunks and adds them to
the index, creating it if needed. Supported: .pdf .png .jpg .jpeg .txt .md`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, path := range args {
			res, err := a.ingest.IngestFile(ctx, path)
			if err != nil {
				return err
			}
			cmd.Printf("%s: %d document(s), %d chunk(s)\n", path, res.Documents, res.Chunks)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
