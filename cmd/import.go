package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/accountsync/internal/domainmap"
	"github.com/sells-group/accountsync/internal/feed"
	"github.com/sells-group/accountsync/internal/fetcher"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import operator-maintained source tables",
	Long:  "Commands for loading the domain map, the renewal tracking sheet, and activity exports into the store.",
}

// -- import domains --

var importDomainsCmd = &cobra.Command{
	Use:   "domains <file>",
	Short: "Replace the domain-to-account map",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("rebuild"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rc, err := fetcher.Open(ctx, args[0])
		if err != nil {
			return err
		}
		defer rc.Close()

		var mappings []domainmap.Mapping
		if strings.HasSuffix(args[0], ".yaml") || strings.HasSuffix(args[0], ".yml") {
			mappings, err = domainmap.LoadYAML(rc)
		} else {
			mappings, err = domainmap.LoadCSV(rc)
		}
		if err != nil {
			return eris.Wrap(err, "load domain map")
		}

		n, err := st.ReplaceDomainMappings(ctx, mappings)
		if err != nil {
			return eris.Wrap(err, "replace domain map")
		}

		zap.L().Info("domain map imported",
			zap.String("source", args[0]),
			zap.Int("mappings", n),
		)
		fmt.Fprintf(os.Stdout, "Imported %d domain mappings\n", n)
		return nil
	},
}

// -- import renewals --

var importRenewalsCmd = &cobra.Command{
	Use:   "renewals <source>",
	Short: "Replace the renewal tracking snapshot",
	Long:  "Loads a renewal sheet (CSV or XLSX, by extension) from a local path, HTTP URL, or FTP URL and swaps the stored snapshot.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("rebuild"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := feed.ImportRenewals(ctx, st, args[0])
		if err != nil {
			return eris.Wrap(err, "import renewals")
		}

		fmt.Fprintf(os.Stdout, "Imported %d renewal rows\n", n)
		return nil
	},
}

// -- import activity --

var importActivityCmd = &cobra.Command{
	Use:   "activity <kind> <source>",
	Short: "Upsert an activity export (emails, events, or tasks)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("rebuild"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mapper, err := initMapper(ctx, st)
		if err != nil {
			return err
		}

		n, err := feed.ImportActivity(ctx, st, mapper, args[0], args[1])
		if err != nil {
			return eris.Wrap(err, "import activity")
		}

		fmt.Fprintf(os.Stdout, "Imported %d %s rows\n", n, args[0])
		return nil
	},
}

func init() {
	importCmd.AddCommand(importDomainsCmd)
	importCmd.AddCommand(importRenewalsCmd)
	importCmd.AddCommand(importActivityCmd)
	rootCmd.AddCommand(importCmd)
}
