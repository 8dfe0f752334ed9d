package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloudx-io/hotiron/client"
	"github.com/cloudx-io/hotiron/core"
	"github.com/cloudx-io/hotiron/registry"
)

var (
	sellersRemote string
	sellersFormat string
)

var sellersCmd = &cobra.Command{
	Use:   "sellers",
	Short: "List the sellers of the configured registry",
	Long: `Lists the sellers loaded from the configured registry source, or from a
running service with --remote. The yaml format is the seller file format
accepted by registry.source=file.`,
	Args: cobra.NoArgs,
	RunE: runSellers,
}

var (
	sellersDriver string
	sellersDSN    string
	upsertFile    string
)

var sellersUpsertCmd = &cobra.Command{
	Use:   "upsert",
	Short: "Insert or update sellers in the SQL registry from a seller file",
	Args:  cobra.NoArgs,
	RunE:  runSellersUpsert,
}

var sellersDeactivateCmd = &cobra.Command{
	Use:   "deactivate NAME...",
	Short: "Hide sellers of the SQL registry from future auctions",
	Long: `Marks sellers inactive in the SQL registry. Their rows are kept and a later
upsert reactivates them. A running service picks the change up on its next
reload (hotiron admin reload).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSellersDeactivate,
}

func init() {
	sellersCmd.Flags().StringVar(&sellersRemote, "remote", "", "Base URL of a running service")
	sellersCmd.Flags().StringVarP(&sellersFormat, "format", "o", formatTable, "Output format: table, json or yaml")

	for _, c := range []*cobra.Command{sellersUpsertCmd, sellersDeactivateCmd} {
		c.Flags().StringVar(&sellersDriver, "driver", "", "Database driver: sqlite or pgx (default from config)")
		c.Flags().StringVar(&sellersDSN, "dsn", "", "Database DSN (default from config)")
		sellersCmd.AddCommand(c)
	}
	sellersUpsertCmd.Flags().StringVarP(&upsertFile, "file", "f", "", "Seller YAML file")
	_ = sellersUpsertCmd.MarkFlagRequired("file")
}

func runSellers(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	var sellers []core.Seller
	if sellersRemote != "" {
		c, err := client.New(sellersRemote)
		if err != nil {
			return usageError(err)
		}
		if sellers, err = c.Sellers(ctx); err != nil {
			return err
		}
	} else {
		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		if sellers, err = a.engine.ListSellers(ctx); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	switch sellersFormat {
	case formatJSON:
		return writeJSONOut(out, sellers)
	case formatYAML:
		data, err := registry.MarshalSellersYAML(sellers)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	case formatTable:
		renderSellers(out, sellers)
		return nil
	default:
		return usageError(fmt.Errorf("unknown format %q", sellersFormat))
	}
}

func runSellersUpsert(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	sellers, err := (&registry.FileSource{Path: upsertFile}).Load(ctx)
	if err != nil {
		return usageError(err)
	}
	if err := registry.ValidateSellers(sellers); err != nil {
		return usageError(err)
	}

	db, driver, err := openRegistryDB(ctx, sellersDriver, sellersDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	source := registry.NewSQLSource(db, driver)
	for _, s := range sellers {
		if err := source.Upsert(ctx, s); err != nil {
			return err
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), passStyle.Render(fmt.Sprintf("Upserted %d sellers", len(sellers))))
	return nil
}

func runSellersDeactivate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, driver, err := openRegistryDB(ctx, sellersDriver, sellersDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	source := registry.NewSQLSource(db, driver)
	for _, name := range args {
		if err := source.Deactivate(ctx, name); err != nil {
			return err
		}
		logger.Info("Seller deactivated", zap.String("seller", name))
	}
	fmt.Fprintln(cmd.OutOrStdout(), passStyle.Render(fmt.Sprintf("Deactivated %d sellers", len(args))))
	return nil
}
