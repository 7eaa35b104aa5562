package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/mlinzi/internal/audit"
	"github.com/jkaninda/mlinzi/internal/config"
)

var (
	auditConfigPath string
	auditLimit      int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent audit events from the history database",
	RunE:  runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 50, "number of events to show")
}

func runAudit(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(goutils.Env("MLINZI_CONFIG", auditConfigPath))
	if err != nil {
		return err
	}
	if cfg.Audit.DBPath == "" {
		return fmt.Errorf("audit history requires audit.db_path in config (the JSONL log at %s is always written)", cfg.Audit.LogPath)
	}

	logger := newLogger(cfg.Log)
	store, err := audit.OpenStore(cfg.Audit.DBPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.Recent(context.Background(), auditLimit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("no audit events recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOP\tOUTCOME\tVAULT\tITEM\tDETAIL")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Time.Local().Format(time.RFC3339),
			e.Op, e.Outcome, e.Vault, e.Item, e.Detail,
		)
	}
	return w.Flush()
}
