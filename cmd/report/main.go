package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/almariscal/criptohacienda/internal/parser"
	"github.com/almariscal/criptohacienda/internal/portfolio"
	"github.com/almariscal/criptohacienda/internal/pricing"
	"github.com/almariscal/criptohacienda/internal/service"
	"github.com/almariscal/criptohacienda/internal/tax"
	"github.com/almariscal/criptohacienda/utils"
)

// Offline reporting tool: reads an exchange statement export and prints the
// realized gains and period summaries without starting the API server.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	statementPath := flag.String("statement", "", "Path of the statement CSV export")
	period := flag.String("period", utils.PeriodYear, "Summary period: day, week, month or year")
	strict := flag.Bool("strict", false, "Abort on price provider failures")
	flag.Parse()

	if *statementPath == "" {
		fmt.Fprintln(os.Stderr, "usage: report -statement <file.csv> [-period year] [-strict]")
		os.Exit(2)
	}

	content, err := os.ReadFile(*statementPath)
	if err != nil {
		logger.Error("Failed to read statement", "error", err)
		os.Exit(1)
	}

	trades, movements, err := parser.ParseStatement(string(content))
	if err != nil {
		logger.Error("Failed to parse statement", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	oracle := pricing.NewOracle(
		[]pricing.Provider{
			pricing.NewCoinGeckoProvider(),
			pricing.NewCryptoCompareProvider(),
		},
		pricing.Config{Strict: *strict},
		utils.NewLogger(),
	)

	engine := tax.NewEngine(oracle)
	if err := engine.Process(ctx, trades); err != nil {
		logger.Error("Gain calculation failed", "error", err)
		os.Exit(1)
	}

	builder := portfolio.NewBuilder(oracle)
	snapshots, err := builder.Build(ctx, trades, movements)
	if err != nil {
		logger.Error("Timeline build failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Trades: %d  Cash movements: %d\n", len(trades), len(movements))
	fmt.Printf("Total invested: %.2f EUR  Total fees: %.2f EUR\n",
		engine.TotalInvestedEUR, engine.TotalFeesEUR)

	fmt.Println("\nRealized gains:")
	for _, gain := range engine.RealizedGains {
		fmt.Printf("  %s  %-8s qty %.8f  proceeds %.2f  cost %.2f  fees %.2f  gain %.2f  (%s)\n",
			gain.Timestamp.UTC().Format("2006-01-02"), gain.Asset, gain.Quantity,
			gain.ProceedsEUR, gain.CostBasisEUR, gain.FeesEUR, gain.GainEUR, gain.Note)
	}

	fmt.Printf("\nSummary per %s:\n", *period)
	for _, summary := range service.SummarizeGains(engine.RealizedGains, *period) {
		fmt.Printf("  %s  disposals %d  proceeds %.2f  cost %.2f  fees %.2f  gain %.2f\n",
			summary.PeriodStart.Format("2006-01-02"), summary.Disposals,
			summary.ProceedsEUR, summary.CostBasisEUR, summary.FeesEUR, summary.GainEUR)
	}

	if len(snapshots) > 0 {
		last := snapshots[len(snapshots)-1]
		fmt.Printf("\nPortfolio value at %s: %.2f EUR (deposited %.2f, withdrawn %.2f)\n",
			last.Timestamp.UTC().Format("2006-01-02"), last.TotalValue,
			last.TotalDepositedEUR, last.TotalWithdrawnEUR)
	}
	if missing := oracle.MissingAssets(); len(missing) > 0 {
		fmt.Printf("\nNo price data found for: %v (figures involving them are approximate)\n", missing)
	}
}
