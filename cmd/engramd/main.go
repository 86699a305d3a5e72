package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"engram/internal/config"
	"engram/internal/model"
	"engram/internal/observability"
	"engram/internal/orchestrator"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfgPath := os.Getenv("ENGRAM_CONFIG")
	if cfgPath == "" {
		cfgPath = "engram.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.Obs.LogPath, cfg.Obs.LogLevel)

	ctx := context.Background()
	shutdown, err := observability.InitOTel(ctx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger := log.Logger
	o, err := orchestrator.New(ctx, cfg, &logger, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to assemble orchestrator")
	}

	switch os.Args[1] {
	case "stats":
		runStats(ctx, o, os.Args[2:])
	case "search":
		runSearch(ctx, o, os.Args[2:])
	case "profile":
		runProfile(ctx, o, os.Args[2:])
	case "entities":
		runEntities(ctx, o, os.Args[2:])
	case "extract":
		runExtract(ctx, o, os.Args[2:])
	case "questions":
		runQuestions(ctx, o, os.Args[2:])
	case "identity":
		runIdentity(ctx, o, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`usage: engramd <command> [flags]

commands:
  stats                 summarize memory counts by category and status
  search <query>         recall memories for a query
  profile                print the accumulated user profile
  identity               print the accumulated assistant identity notes
  entities               list known entities
  extract                force an extraction run over the current buffer
  questions [-a]         list open questions (-a for all, including resolved)`)
}

func namespaceFlag(fs *flag.FlagSet, cfg config.Config) *string {
	return fs.String("ns", cfg.Store.DefaultNamespace, "namespace")
}

func runStats(ctx context.Context, o *orchestrator.Orchestrator, args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	ns := namespaceFlag(fs, o.Cfg)
	fs.Parse(args)

	items, err := o.Store.ListAll(ctx, *ns)
	if err != nil {
		log.Fatal().Err(err).Msg("list items")
	}
	byCategory := map[model.Category]int{}
	byStatus := map[model.Status]int{}
	for _, it := range items {
		byCategory[it.Category]++
		byStatus[it.Status]++
	}
	fmt.Printf("total: %d\n", len(items))
	fmt.Println("by category:")
	for cat, n := range byCategory {
		fmt.Printf("  %-14s %d\n", cat, n)
	}
	fmt.Println("by status:")
	for st, n := range byStatus {
		fmt.Printf("  %-14s %d\n", st, n)
	}

	boxes, err := o.Store.ListBoxes(ctx, *ns)
	if err != nil {
		log.Fatal().Err(err).Msg("list boxes")
	}
	fmt.Printf("sealed boxes: %d\n", len(boxes))
}

func runSearch(ctx context.Context, o *orchestrator.Orchestrator, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	ns := namespaceFlag(fs, o.Cfg)
	n := fs.Int("n", 10, "max results")
	fs.Parse(args)
	if fs.NArg() == 0 {
		fmt.Println("usage: engramd search [-ns namespace] [-n N] <query>")
		os.Exit(1)
	}
	query := strings.Join(fs.Args(), " ")

	res := o.Recall(ctx, *ns, query, []string{*ns})
	if res.ShortCircuited {
		fmt.Println("(no-recall query; nothing retrieved)")
		return
	}
	max := *n
	if max > len(res.Candidates) {
		max = len(res.Candidates)
	}
	for i, c := range res.Candidates[:max] {
		fmt.Printf("%d. [%s] score=%.3f %s\n   %s\n", i+1, c.Item.ID, c.Score, c.Item.Category, c.Snippet)
	}
	for _, a := range res.Artifacts {
		fmt.Printf("artifact (%s): %q\n", a.SourceID, a.Quote)
	}
}

func runProfile(ctx context.Context, o *orchestrator.Orchestrator, args []string) {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	ns := namespaceFlag(fs, o.Cfg)
	fs.Parse(args)
	body, err := o.Store.ReadProfile(ctx, *ns)
	if err != nil {
		log.Fatal().Err(err).Msg("read profile")
	}
	fmt.Println(body)
}

func runIdentity(ctx context.Context, o *orchestrator.Orchestrator, args []string) {
	fs := flag.NewFlagSet("identity", flag.ExitOnError)
	ns := namespaceFlag(fs, o.Cfg)
	fs.Parse(args)
	body, err := o.Store.ReadIdentity(ctx, *ns)
	if err != nil {
		log.Fatal().Err(err).Msg("read identity")
	}
	fmt.Println(body)
}

func runEntities(ctx context.Context, o *orchestrator.Orchestrator, args []string) {
	fs := flag.NewFlagSet("entities", flag.ExitOnError)
	ns := namespaceFlag(fs, o.Cfg)
	fs.Parse(args)
	names, err := o.Store.ListEntityNames(ctx, *ns)
	if err != nil {
		log.Fatal().Err(err).Msg("list entities")
	}
	for _, name := range names {
		e, err := o.Store.ReadEntity(ctx, *ns, name)
		if err != nil {
			log.Warn().Err(err).Str("entity", name).Msg("read entity")
			continue
		}
		fmt.Printf("%s (%s): %s\n", e.Name, e.Type, strings.Join(e.Facts, "; "))
	}
}

func runQuestions(ctx context.Context, o *orchestrator.Orchestrator, args []string) {
	fs := flag.NewFlagSet("questions", flag.ExitOnError)
	ns := namespaceFlag(fs, o.Cfg)
	all := fs.Bool("a", false, "include resolved questions")
	fs.Parse(args)
	qs, err := o.Store.ListQuestions(ctx, *ns, !*all)
	if err != nil {
		log.Fatal().Err(err).Msg("list questions")
	}
	for _, q := range qs {
		status := "open"
		if q.Resolved {
			status = "resolved"
		}
		fmt.Printf("[%s] (%.2f) %s — %s\n", status, q.Priority, q.Question, q.Context)
	}
}

func runExtract(ctx context.Context, o *orchestrator.Orchestrator, args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	ns := namespaceFlag(fs, o.Cfg)
	fs.Parse(args)

	o.Pipeline.Trigger(ctx, *ns)
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := o.WaitForExtractionIdle(waitCtx); err != nil {
		log.Fatal().Err(err).Msg("waiting for extraction")
	}
	fmt.Println("extraction run complete")
}
