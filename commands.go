package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"facturas/models"
	"facturas/pkg/extract"
	"facturas/pkg/ocr"
	"facturas/pkg/store"
	"facturas/process"
)

var (
	scanWorkers int
	scanSave    bool
	scanUser    string
)

// newPipeline wires OCR, AI and, when save is set, the database.
func newPipeline(ctx context.Context, save bool, username string) (*process.Pipeline, func(), error) {
	asker, err := newAsker(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	p := &process.Pipeline{
		Recognizer:  newRecognizer(cfg),
		Asker:       asker,
		Instruction: cfg.AI.Instruction,
	}
	cleanup := func() { closeAsker(asker) }
	if !save {
		return p, cleanup, nil
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if st == nil {
		cleanup()
		return nil, nil, eris.New("--save needs db.dsn")
	}
	p.Store = st
	if username != "" {
		u, err := st.UserByUsername(ctx, username)
		if err != nil {
			_ = st.Close()
			cleanup()
			return nil, nil, eris.Wrapf(err, "user %s", username)
		}
		p.UserID = &u.ID
	}
	return p, func() { _ = st.Close(); cleanup() }, nil
}

func workersOrDefault() int {
	if scanWorkers > 0 {
		return scanWorkers
	}
	return cfg.Watch.Workers
}

var scanCmd = &cobra.Command{
	Use:   "scan <image>...",
	Short: "Run OCR and extraction over image files and print one JSON line per file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, cleanup, err := newPipeline(ctx, scanSave, scanUser)
		if err != nil {
			return err
		}
		defer cleanup()

		out := make(chan models.Scan)
		done := make(chan struct{})
		enc := json.NewEncoder(cmd.OutOrStdout())
		go func() {
			defer close(done)
			for scan := range out {
				_ = enc.Encode(scan)
			}
		}()

		var failed atomic.Int32
		process.RunPool(ctx, args, workersOrDefault(), func(ctx context.Context, path string) {
			scan, err := p.ProcessFile(ctx, path)
			if err != nil {
				zap.L().Error("scan failed", zap.String("file", path), zap.Error(err))
				failed.Add(1)
				return
			}
			out <- scan
		})
		close(out)
		<-done
		if n := failed.Load(); n > 0 {
			return eris.Errorf("%d of %d files failed", n, len(args))
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Process the images in a directory, then keep processing new ones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		dir := args[0]

		p, cleanup, err := newPipeline(ctx, scanSave, scanUser)
		if err != nil {
			return err
		}
		defer cleanup()

		handle := func(ctx context.Context, path string) {
			scan, err := p.ProcessFile(ctx, path)
			if err != nil {
				zap.L().Error("processing failed", zap.String("file", path), zap.Error(err))
				return
			}
			zap.L().Info("processed",
				zap.String("file", path),
				zap.Uint("scan_id", scan.ID),
				zap.String("date", scan.Date),
				zap.String("amount", scan.Amount),
				zap.Float64("confidence", scan.Confidence),
			)
			if _, err := process.MoveToProcessed(dir, path); err != nil {
				zap.L().Warn("move to processed failed", zap.String("file", path), zap.Error(err))
			}
		}

		return process.Watch(ctx, dir, workersOrDefault(), handle)
	},
}

var createUserAdmin bool

var createUserCmd = &cobra.Command{
	Use:   "create-user <username> <password>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := requireDB(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		u, err := st.RegisterUser(cmd.Context(), args[0], args[1])
		if errors.Is(err, store.ErrUserExists) {
			cmd.Printf("user %s already exists\n", args[0])
			return nil
		}
		if err != nil {
			return err
		}
		if createUserAdmin {
			if err := st.SetRole(cmd.Context(), u.ID, models.RoleAdministrator); err != nil {
				return err
			}
		}
		cmd.Printf("created user %s id=%d\n", u.Username, u.ID)
		return nil
	},
}

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password <username> <password>",
	Short: "Replace the password of an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := requireDB(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.SetPassword(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		cmd.Printf("password reset for user %s\n", args[0])
		return nil
	},
}

var reportUser string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the scanned totals per month",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := requireDB(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		var uid *uint
		if reportUser != "" {
			u, err := st.UserByUsername(cmd.Context(), reportUser)
			if err != nil {
				return eris.Wrapf(err, "user %s", reportUser)
			}
			uid = &u.ID
		}
		months, err := st.MonthlySummary(cmd.Context(), uid)
		if err != nil {
			return err
		}
		for _, m := range months {
			cmd.Printf("%s  records=%d  total=%s\n", m.Month, m.Count, m.Total.StringFixed(2))
		}
		return nil
	},
}

var reextractCmd = &cobra.Command{
	Use:   "reextract",
	Short: "Run the extraction rules again over the stored OCR text",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := requireDB(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		n, err := st.Reextract(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("updated %d scans\n", n)
		return nil
	},
}

var debugDump string

var debugOCRCmd = &cobra.Command{
	Use:   "debug-ocr <image>",
	Short: "Print the OCR text of an image, the rules that matched and the extracted record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}
		tess := ocr.NewTesseract(ocr.Options{Language: cfg.OCR.Language, MinHeight: cfg.OCR.MinHeight})
		if debugDump != "" {
			if err := os.MkdirAll(debugDump, 0o755); err != nil {
				return eris.Wrapf(err, "mkdir %s", debugDump)
			}
			paths, err := tess.DumpPasses(data, debugDump)
			if err != nil {
				return err
			}
			for _, p := range paths {
				cmd.Printf("wrote %s\n", p)
			}
		}

		raw, err := tess.Recognize(cmd.Context(), data)
		if err != nil {
			return err
		}
		cmd.Printf("--- raw ---\n%s\n--- rules ---\n", raw)
		for _, set := range []struct {
			field string
			rules extract.Rules
		}{
			{"amount", extract.AmountRules},
			{"vendor", extract.VendorRules},
			{"date", extract.DateRules},
		} {
			if v, rule, ok := set.rules.First(raw); ok {
				cmd.Printf("%-7s %-14s %q\n", set.field, rule, v)
			} else {
				cmd.Printf("%-7s (no match)\n", set.field)
			}
		}
		out, err := json.MarshalIndent(extract.ExtractClean(raw), "", "  ")
		if err != nil {
			return err
		}
		cmd.Printf("--- record ---\n%s\n", out)
		return nil
	},
}

func requireDB(ctx context.Context) (*store.Store, error) {
	if cfg.DB.DSN == "" {
		return nil, eris.New("db.dsn is not set")
	}
	return openStore(ctx, cfg)
}

func init() {
	for _, c := range []*cobra.Command{scanCmd, watchCmd} {
		c.Flags().IntVar(&scanWorkers, "workers", 0, "worker pool size (default watch.workers)")
		c.Flags().BoolVar(&scanSave, "save", false, "store the scans in the database")
		c.Flags().StringVar(&scanUser, "user", "", "owner of the stored scans")
	}
	createUserCmd.Flags().BoolVar(&createUserAdmin, "admin", false, "grant the administrator role")
	reportCmd.Flags().StringVar(&reportUser, "user", "", "only this user's scans")
	debugOCRCmd.Flags().StringVar(&debugDump, "dump", "", "write the preprocessed images to this directory")
	rootCmd.AddCommand(scanCmd, watchCmd, createUserCmd, resetPasswordCmd, reportCmd, reextractCmd, debugOCRCmd)
}
