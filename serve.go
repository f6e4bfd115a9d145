package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/itish2003/docrag/controller"
)

var serveWatchDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Starts the HTTP API with the /health, /upload, /chat and /index/stats
routes. With --watch, a folder is indexed at startup and kept in sync.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if serveWatchDir != "" {
			if _, err := a.folders.IndexFolder(ctx, serveWatchDir); err != nil {
				return err
			}
			if _, err := a.folders.StartWatch(ctx, serveWatchDir); err != nil {
				return err
			}
		}

		router := controller.NewRouter(controller.NewRAGController(a.ingest, a.rag, int64(cfg.Server.MaxUploadMB)<<20))
		srv := &http.Server{Addr: cfg.Server.Addr, Handler: router}

		errCh := make(chan error, 1)
		go func() {
			a.log.WithFields(logrus.Fields{"addr": cfg.Server.Addr, "backend": cfg.Index.Backend}).Info("server starting")
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveWatchDir, "watch", "", "index this folder at startup and watch it for changes")
	rootCmd.AddCommand(serveCmd)
}
