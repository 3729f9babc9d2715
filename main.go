package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"facturas/pkg/ai"
	"facturas/pkg/config"
	"facturas/pkg/ocr"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "facturas",
	Short: "OCR de facturas con extracción de campos e IA opcional",
	Long: "Reads invoice photos with Tesseract, extracts date, amount, vendor and concept with " +
		"ordered rules and optionally asks a language model about the text.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		if cfg.Log.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web UI and the OCR API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		var ds dataStore
		if st != nil {
			defer st.Close()
			ds = st
		}

		asker, err := newAsker(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeAsker(asker)

		srv, err := newServer(cfg, newRecognizer(cfg), asker, ds)
		if err != nil {
			return err
		}
		handler, err := srv.routes()
		if err != nil {
			return err
		}

		addr := serveAddr
		if addr == "" {
			addr = cfg.Server.Addr
		}
		httpSrv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.String("addr", addr),
			zap.Bool("ai", asker != nil),
			zap.Bool("db", ds != nil),
			zap.Bool("auth_required", cfg.Auth.Required),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the tables and seed roles and the admin account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DB.DSN == "" {
			return eris.New("db.dsn is not set")
		}
		cfg.DB.AutoMigrate = true
		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		cmd.Println("migration and seeding completed")
		return nil
	},
}

func newRecognizer(cfg *config.Config) ocr.Recognizer {
	return ocr.NewTesseract(ocr.Options{Language: cfg.OCR.Language, MinHeight: cfg.OCR.MinHeight})
}

// newAsker builds the configured AI provider; nil means AI is disabled.
func newAsker(ctx context.Context, cfg *config.Config) (ai.Asker, error) {
	asker, err := ai.New(ctx, cfg.AI.Config)
	if errors.Is(err, ai.ErrNotConfigured) {
		zap.L().Info("ai.provider is not set, AI extraction is disabled")
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "init ai provider")
	}
	return asker, nil
}

func closeAsker(a ai.Asker) {
	if c, ok := a.(io.Closer); ok {
		_ = c.Close()
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
