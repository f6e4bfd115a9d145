package main

import (
	"github.com/spf13/cobra"
)

var indexFolderWatch bool

var indexFolderCmd = &cobra.Command{
	Use:   "index-folder DIR",
	Short: "Index every supported file in a folder",
	Long: `Loads the folder through the document cache and builds the index from it.
An existing index is opened as is. With --watch the command keeps running and
ingests files as they are added or changed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.folders.IndexFolder(ctx, args[0])
		if err != nil {
			return err
		}
		if res.Created {
			cmd.Printf("Indexed %d document(s) into %d chunk(s)\n", res.Documents, res.Chunks)
		} else {
			cmd.Println("Loaded existing index")
		}

		if !indexFolderWatch {
			return nil
		}
		cmd.Printf("Watching %s, press Ctrl+C to stop\n", args[0])
		return a.folders.WatchDirectory(ctx, args[0])
	},
}

func init() {
	indexFolderCmd.Flags().BoolVar(&indexFolderWatch, "watch", false, "keep watching the folder for changes")
	rootCmd.AddCommand(indexFolderCmd)
}
