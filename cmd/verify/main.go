package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"loop-dash/internal/config"
	"loop-dash/internal/dashboard"
	"loop-dash/internal/feed"
	"loop-dash/internal/logging"
	"loop-dash/internal/market"
	"loop-dash/internal/morpho"
	"loop-dash/internal/vault"

	"go.uber.org/zap"
)

const defaultVerifyEnvFile = ".env"

func main() {
	configPath := flag.String("config", "", "optional config path for GraphQL settings")
	vaultID := flag.String("vault", "", "market id to quote")
	collateral := flag.String("collateral", "", "collateral amount in USD")
	borrow := flag.String("borrow", "", "borrow amount in USD")
	strategyID := flag.String("strategy", "", "strategy id (default leverage-eth)")
	leverage := flag.Float64("leverage", 1, "leverage ratio for leveraged strategies")
	asJSON := flag.Bool("json", false, "print the quote as JSON")
	watch := flag.String("watch", "", "ws:// URL of a running dashboard feed to tail")
	flag.Parse()

	if err := config.LoadEnv(defaultVerifyEnvFile); err != nil {
		fatal(err)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	if *watch != "" {
		runWatch(log, *watch, cfg.Feed)
		return
	}

	client := morpho.New(cfg.GraphQL.URL, cfg.GraphQL.Timeout, log)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.GraphQL.Timeout+5*time.Second)
	defer cancel()
	raw, err := client.Markets(ctx, cfg.GraphQL.Skip, cfg.GraphQL.PageSize)
	if err != nil {
		fatal(err)
	}
	markets := market.Normalize(raw)
	fmt.Printf("markets: %d raw, %d complete\n", len(raw), len(markets))

	options := vault.Options(markets, "")
	fmt.Printf("eth vaults: %d\n", len(options))
	for _, opt := range options {
		fmt.Printf("  %s  %s\n", opt.ID, opt.Label())
	}

	if *vaultID == "" {
		return
	}
	in := dashboard.DefaultInput()
	in.MarketID = dashboard.CanonicalMarketID(*vaultID)
	in.Collateral = *collateral
	in.Borrow = *borrow
	if *strategyID != "" {
		in.StrategyID = *strategyID
	}
	in.Leverage = *leverage
	view := dashboard.Build(market.Snapshot{Markets: markets, UpdatedAt: time.Now().UTC()}, in)
	if view.Quote.MarketID == "" {
		fatal(fmt.Errorf("vault %s not found", *vaultID))
	}
	if *asJSON {
		pretty, err := json.MarshalIndent(view.Quote, "", "  ")
		if err != nil {
			fatal(err)
		}
		fmt.Println(string(pretty))
		return
	}
	printQuote(view)
}

func printQuote(view dashboard.View) {
	fmt.Println("quote:")
	if view.Strategy != nil {
		fmt.Printf("  strategy:      %s (%s, risk %s)\n", view.Strategy.Name, view.LeverageLabel, view.Strategy.Risk)
	}
	fmt.Printf("  collateral:    $%s ≈ %s\n", view.Input.Collateral, view.CollateralTokens)
	fmt.Printf("  borrow:        $%s ≈ %s\n", view.Input.Borrow, view.BorrowTokens)
	fmt.Printf("  max borrow:    %s (ltv %s)\n", view.MaxBorrow, view.LTV)
	fmt.Printf("  health factor: %s\n", view.HealthFactor)
	if view.OverBorrowed {
		fmt.Println("  warning:       exceeds max borrow")
	}
	if view.ShowLeverage {
		fmt.Printf("  leverage:      %s\n", view.LeverageAdvice.Message)
	}
	fmt.Printf("  supply apy:    %s\n", view.Components.SupplyAPY)
	fmt.Printf("  borrow apy:    %s\n", view.Components.BorrowAPY)
	fmt.Printf("  strategy apy:  %s\n", view.Components.StrategyAPY)
	fmt.Printf("  net apy:       %s\n", view.Components.NetAPY)
	for _, r := range view.Returns {
		fmt.Printf("  %-14s %s %s\n", strings.ToLower(r.Period)+":", r.Amount, r.Rebate)
	}
}

func runWatch(log *zap.Logger, url string, cfg config.FeedConfig) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	client := feed.NewClient(url, cfg.ReconnectDelay, cfg.PingInterval, log)
	err := client.Run(ctx, func(u feed.Update) {
		switch {
		case u.Loading:
			fmt.Println("feed: loading")
		case u.Error != "":
			fmt.Printf("feed: error: %s\n", u.Error)
		default:
			source := "network"
			if u.FromCache {
				source = "cache"
			}
			fmt.Printf("feed: %d markets, %d eth vaults, updated %s (%s)\n",
				len(u.Markets), len(vault.Select(u.Markets)), u.UpdatedAt.Format(time.RFC3339), source)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
