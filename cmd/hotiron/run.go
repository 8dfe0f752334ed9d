package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cloudx-io/hotiron/auctionapi"
	"github.com/cloudx-io/hotiron/client"
	"github.com/cloudx-io/hotiron/core"
	"github.com/cloudx-io/hotiron/history"
	"github.com/cloudx-io/hotiron/reveal"
)

var (
	runAddress  string
	runLat      float64
	runLon      float64
	runQuantity float64
	runMaxPrice float64
	runRemote   string
	runReveal   bool
	runFormat   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one auction",
	Long: `Runs an auction with the local engine, or against a running service with
--remote. Explicit --lat and --lon take precedence over --address.

Example:
  hotiron run --address "Chicago, IL" --qty 1500
  hotiron run --lat 40.44 --lon -79.99 --qty 250 --max-price 900 --reveal`,
	Args: cobra.NoArgs,
	RunE: runAuction,
}

func init() {
	runCmd.Flags().StringVar(&runAddress, "address", "", "Buyer address")
	runCmd.Flags().Float64Var(&runLat, "lat", 0, "Buyer latitude")
	runCmd.Flags().Float64Var(&runLon, "lon", 0, "Buyer longitude")
	runCmd.Flags().Float64Var(&runQuantity, "qty", 0, "Quantity in metric tons")
	runCmd.Flags().Float64Var(&runMaxPrice, "max-price", 0, "Exclude bids above this net price per ton")
	runCmd.Flags().StringVar(&runRemote, "remote", "", "Base URL of a running service")
	runCmd.Flags().BoolVar(&runReveal, "reveal", false, "Reveal bids one at a time before the result")
	runCmd.Flags().StringVarP(&runFormat, "format", "o", formatTable, "Output format: table or json")
	_ = runCmd.MarkFlagRequired("qty")
}

func runAuction(cmd *cobra.Command, _ []string) error {
	req := core.AuctionRequest{
		BuyerAddress:      runAddress,
		QuantityTons:      runQuantity,
		MaxNetPricePerTon: runMaxPrice,
	}
	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
		if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
			return usageError(errors.New("--lat and --lon must be given together"))
		}
		req.Lat, req.Lon = &runLat, &runLon
	}
	if runFormat != formatTable && runFormat != formatJSON {
		return usageError(fmt.Errorf("unknown format %q", runFormat))
	}

	out := cmd.OutOrStdout()
	showReveal := runReveal && runFormat == formatTable

	var (
		resp *auctionapi.RunResponse
		err  error
	)
	if runRemote != "" {
		resp, err = runRemoteAuction(cmd.Context(), out, req, showReveal)
	} else {
		resp, err = runLocalAuction(cmd.Context(), out, req, showReveal)
	}
	if err != nil {
		return err
	}

	if runFormat == formatJSON {
		return writeJSONOut(out, resp)
	}
	if showReveal {
		fmt.Fprintln(out)
	}
	renderRun(out, resp)
	return nil
}

func runRemoteAuction(ctx context.Context, out io.Writer, req core.AuctionRequest, showReveal bool) (*auctionapi.RunResponse, error) {
	c, err := client.New(runRemote)
	if err != nil {
		return nil, usageError(err)
	}
	if !showReveal {
		return c.RunAuction(ctx, req)
	}
	return c.Stream(ctx, req, func(msg auctionapi.StreamMessage) {
		renderRevealStep(out, msg.Rank, *msg.Bid, msg.IsWinner)
	})
}

func runLocalAuction(ctx context.Context, out io.Writer, req core.AuctionRequest, showReveal bool) (*auctionapi.RunResponse, error) {
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	result, err := a.engine.RunAuction(ctx, req)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	var rcpt *auctionapi.Receipt
	if a.issuer != nil {
		if rcpt, err = a.issuer.Issue(runID, result); err != nil {
			return nil, fmt.Errorf("issuing receipt: %w", err)
		}
	}
	if _, err := a.history.Dispatch(ctx, history.RecordRun{Run: history.NewRun(runID, time.Now().UTC(), req, result)}); err != nil {
		return nil, err
	}

	if showReveal {
		plan := reveal.NewPlan(result, cfg.Reveal.MinDelay, cfg.Reveal.MaxDelay, nil)
		err := reveal.Play(ctx, plan, func(step reveal.Step) error {
			renderRevealStep(out, step.Rank, step.Bid, step.IsWinner)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	resp := auctionapi.NewRunResponse(runID, result, rcpt)
	return &resp, nil
}
