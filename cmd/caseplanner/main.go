package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"caseplanner/internal/config"
	"caseplanner/internal/logging"
	"caseplanner/internal/market"
	"caseplanner/internal/metadata"
	"caseplanner/internal/pipeline"
	"caseplanner/internal/planner"
	"caseplanner/internal/storage"
	"caseplanner/internal/util"
	"caseplanner/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	must(err)
	defer func() { _ = log.Sync() }()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "prices:refresh":
		w := watcher.NewService(newRefreshService(cfg, db, log), db, cfg.WatchInterval(), "", log)
		res, err := w.Cycle(ctx)
		must(err)
		fmt.Printf("refresh %s trace=%s records=%d complete=%d new=%d updated=%d pages=%d took=%s\n",
			res.Status(), res.TraceID, res.Records, res.Complete, res.NewKeys, res.UpdatedKeys, res.Market.Pages, res.Duration.Round(time.Millisecond))
		if res.MetadataErr != nil {
			fmt.Printf("  metadata source failed: %v\n", res.MetadataErr)
		}
		if res.MarketErr != nil {
			fmt.Printf("  market source failed: %v\n", res.MarketErr)
		}
	case "prices:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		sortBy := fs.String("sort", "name", "name|price|roi")
		dir := fs.String("dir", "asc", "asc|desc")
		_ = fs.Parse(os.Args[2:])
		field, err := pipeline.ParseSortField(*sortBy)
		must(err)
		snap, err := loadSnapshot(db)
		must(err)
		records := pipeline.SortRecords(snap.Complete(), field, strings.EqualFold(*dir, "desc"))
		for _, r := range records {
			keyCost := r.KeyCost
			if keyCost == nil {
				keyCost = &cfg.DefaultKeyCost
			}
			fmt.Printf("%-40s price %8s  roi %8s  key %6s\n", r.Name, planner.MoneyPtr(r.Price), planner.Percent(r.ROI), planner.MoneyPtr(keyCost))
		}
		fmt.Printf("%d cases\n", len(records))
	case "prices:lookup":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		name := fs.String("name", "", "case name as listed on the market")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*name) == "" {
			must(fmt.Errorf("--name is required"))
		}
		price, err := market.NewListingClient(cfg, log).LookupPrice(ctx, *name)
		must(err)
		fmt.Printf("%s: %s\n", *name, planner.MoneyPtr(price))
	case "prices:runs":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 10, "number of runs")
		_ = fs.Parse(os.Args[2:])
		runs, err := db.ListRuns(*limit)
		must(err)
		for _, r := range runs {
			fmt.Printf("%s %-8s trace=%s complete=%d took=%.0fms\n", r.CreatedAt, r.Status, r.TraceID, r.Counts["complete"], r.Timings["totalMs"])
		}
	case "prices:watch":
		must(watcher.NewService(newRefreshService(cfg, db, log), db, cfg.WatchInterval(), watchExportPath(cfg), log).Run(ctx))
	case "planner:add", "planner:set":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		name := fs.String("name", "", "case name")
		qty := fs.Int("qty", 1, "quantity")
		_ = fs.Parse(os.Args[2:])
		key, display, err := resolveName(db, *name)
		must(err)
		if cmd == "planner:add" {
			must(db.AddPlannerLine(key, display, *qty))
		} else {
			must(db.SetPlannerLine(key, display, *qty))
		}
		fmt.Printf("%s %s qty=%d\n", cmd, display, *qty)
	case "planner:remove":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		name := fs.String("name", "", "case name")
		_ = fs.Parse(os.Args[2:])
		key := util.NormalizeCaseName(*name)
		if key == "" {
			must(fmt.Errorf("--name is required"))
		}
		removed, err := db.RemovePlannerLine(key)
		must(err)
		if !removed {
			must(fmt.Errorf("no planner line for %q", *name))
		}
		fmt.Printf("removed %s\n", *name)
	case "planner:clear":
		must(db.ClearPlanner())
		fmt.Println("planner cleared")
	case "planner:show":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		tax := fs.Float64("tax", 0, "tax percent, stored for later runs")
		budget := fs.Float64("budget", 0, "budget, stored for later runs")
		keys := fs.Int("keys", 0, "keys owned, stored for later runs")
		_ = fs.Parse(os.Args[2:])
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "tax":
				must(db.SetMetadata(storage.KeyTaxRate, strconv.FormatFloat(*tax/100, 'f', -1, 64)))
			case "budget":
				must(db.SetMetadata(storage.KeyBudget, strconv.FormatFloat(*budget, 'f', -1, 64)))
			case "keys":
				must(db.SetMetadata(storage.KeyKeysOwned, strconv.Itoa(*keys)))
			}
		})
		snap, err := loadSnapshot(db)
		must(err)
		summary, err := plannerSummary(cfg, db, snap)
		must(err)
		fmt.Print(planner.FormatSummary(summary))
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", filepath.Join(cfg.OutputDir, "caseplanner.xlsx"), "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		snap, err := loadSnapshot(db)
		must(err)
		summary, err := plannerSummary(cfg, db, snap)
		must(err)
		records := snap.Complete()
		must(pipeline.ExportXLSX(records, &summary, *out))
		fmt.Printf("exported %d cases to %s\n", len(records), *out)
	default:
		usage()
		os.Exit(1)
	}
}

func newRefreshService(cfg config.Config, db *storage.DB, log *zap.Logger) *pipeline.RefreshService {
	src, err := market.NewSource(cfg, log)
	must(err)
	svc := pipeline.NewRefreshService(metadata.NewClient(cfg, log), src, nil, log)
	snap, err := loadSnapshot(db)
	must(err)
	svc.Seed(snap)
	return svc
}

func loadSnapshot(db *storage.DB) (pipeline.Snapshot, error) {
	records, err := db.LoadSnapshot()
	if err != nil {
		return pipeline.Snapshot{}, err
	}
	return pipeline.NewSnapshot(records), nil
}

func plannerSummary(cfg config.Config, db *storage.DB, snap pipeline.Snapshot) (planner.Summary, error) {
	stored, err := db.ListPlannerLines()
	if err != nil {
		return planner.Summary{}, err
	}
	taxRate, err := db.MetadataFloat(storage.KeyTaxRate, cfg.DefaultTaxRate)
	if err != nil {
		return planner.Summary{}, err
	}
	budget, err := db.MetadataFloat(storage.KeyBudget, cfg.DefaultBudget)
	if err != nil {
		return planner.Summary{}, err
	}
	keys, err := db.MetadataInt(storage.KeyKeysOwned, 0)
	if err != nil {
		return planner.Summary{}, err
	}
	return planner.Calculate(planner.ResolveLines(snap.Get, stored), planner.Params{
		TaxRate:        taxRate,
		Budget:         budget,
		KeysOwned:      keys,
		DefaultKeyCost: cfg.DefaultKeyCost,
	})
}

// resolveName maps user input to a normalized key and the best display name.
func resolveName(db *storage.DB, name string) (string, string, error) {
	key := util.NormalizeCaseName(name)
	if key == "" {
		return "", "", fmt.Errorf("--name is required")
	}
	snap, err := loadSnapshot(db)
	if err != nil {
		return "", "", err
	}
	if rec, ok := snap.Get(key); ok {
		return key, rec.Name, nil
	}
	return key, util.CleanName(name), nil
}

func watchExportPath(cfg config.Config) string {
	if !cfg.WatchExport {
		return ""
	}
	return filepath.Join(cfg.OutputDir, "cases_latest.xlsx")
}

func usage() {
	fmt.Println("usage: caseplanner <command>")
	fmt.Println("commands:")
	fmt.Println("  prices:refresh")
	fmt.Println("  prices:list [--sort=name|price|roi] [--dir=asc|desc]")
	fmt.Println("  prices:lookup --name=\"Chroma Case\"")
	fmt.Println("  prices:runs [--limit=10]")
	fmt.Println("  prices:watch")
	fmt.Println("  planner:add --name=... [--qty=1]")
	fmt.Println("  planner:set --name=... --qty=N")
	fmt.Println("  planner:remove --name=...")
	fmt.Println("  planner:clear")
	fmt.Println("  planner:show [--tax=percent] [--budget=amount] [--keys=N]")
	fmt.Println("  export:xlsx [--out=./out/caseplanner.xlsx]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
