// Command levi-index prepares the corpus index offline: it embeds a JSONL
// dataset, builds the index from the embedded records and saves it to the
// configured storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"levi/internal/app"
	"levi/internal/config"
	"levi/internal/corpus"
	"levi/internal/logger"
	"levi/internal/vectorindex"
)

const usage = `Usage: levi-index [-config=config.yaml] [-debug] <command> [flags]

Commands:
  embed    embed corpus.dataset_path into corpus.embeddings_path (resumable)
  build    build the corpus index from corpus.source and save it to index.storage
  query    print the nearest neighbours of a stored entry
  sqlite   copy corpus.embeddings_path into the sqlite docs table`

func main() {
	_ = godotenv.Load()

	var (
		cfgPath string
		debug   bool
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := logger.Init(debug || cfg.Log.Debug); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "embed":
		err = runEmbed(ctx, cfg, args)
	case "build":
		err = runBuild(ctx, cfg, args)
	case "query":
		err = runQuery(ctx, cfg, args)
	case "sqlite":
		err = runSQLite(ctx, cfg, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("%s: %v", cmd, err)
		os.Exit(1)
	}
}

func runEmbed(ctx context.Context, cfg *config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	dataset := fs.String("dataset", cfg.Corpus.DatasetPath, "JSONL dataset to embed")
	output := fs.String("out", cfg.Corpus.EmbeddingsPath, "JSONL file receiving {id, text, embedding} records")
	batch := fs.Int("batch", cfg.Embedder.BatchSize, "Texts per embedding request")
	fs.Parse(args)

	emb, closeEmb, err := app.NewEmbedder(cfg.Embedder)
	if err != nil {
		return err
	}
	defer closeEmb()

	logger.Info("Embedding %s with %s into %s", *dataset, emb.Name(), *output)
	stats, err := corpus.EmbedDataset(ctx, emb, *batch, *dataset, *output)
	logger.Info("Embedded %d, skipped %d, failed %d of %d records", stats.Embedded, stats.Skipped, stats.Failed, stats.Total)
	return err
}

func runBuild(ctx context.Context, cfg *config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	source := fs.String("source", cfg.Corpus.Source, "Record source: jsonl, sqlite or postgres")
	fs.Parse(args)
	cfg.Corpus.Source = *source

	metric, err := vectorindex.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return err
	}
	src, closeSrc, err := corpus.Open(ctx, cfg.Corpus)
	if err != nil {
		return err
	}
	defer closeSrc()

	idx, err := corpus.BuildIndex(ctx, src, metric)
	if err != nil {
		return err
	}
	store, err := app.NewStorage(ctx, cfg.Index.Storage)
	if err != nil {
		return err
	}
	if err := vectorindex.Save(ctx, store, cfg.Index.Name, idx); err != nil {
		return err
	}
	logger.Info("Saved %s: %d entries, dim %d, metric %s", cfg.Index.Name, idx.Len(), idx.Dim(), idx.Metric())
	return nil
}

func runQuery(ctx context.Context, cfg *config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	pos := fs.Int("pos", 0, "Position of the entry whose neighbours are printed")
	id := fs.String("id", "", "Id of the entry whose neighbours are printed; overrides -pos")
	k := fs.Int("k", 5, "Number of neighbours")
	fs.Parse(args)

	store, err := app.NewStorage(ctx, cfg.Index.Storage)
	if err != nil {
		return err
	}
	idx, err := vectorindex.Load(ctx, store, cfg.Index.Name)
	if err != nil {
		return err
	}
	if *id != "" {
		p, ok := idx.Position(*id)
		if !ok {
			return fmt.Errorf("no entry with id %q in %s", *id, cfg.Index.Name)
		}
		*pos = p
	}
	vec, err := idx.Reconstruct(*pos)
	if err != nil {
		return err
	}
	neighbors, err := vectorindex.Neighbors(idx, vec, *k)
	if err != nil {
		return err
	}
	name, _ := idx.ID(*pos)
	fmt.Printf("Index %s: %d entries, dim %d, metric %s\n", cfg.Index.Name, idx.Len(), idx.Dim(), idx.Metric())
	fmt.Printf("Neighbours of %s (position %d):\n", name, *pos)
	for i, n := range neighbors {
		fmt.Printf("%2d. %-24s %.4f  %s\n", i+1, n.ID, n.Score, preview(n.Text, 80))
	}
	return nil
}

func runSQLite(ctx context.Context, cfg *config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("sqlite", flag.ExitOnError)
	in := fs.String("in", cfg.Corpus.EmbeddingsPath, "JSONL embeddings file")
	db := fs.String("db", cfg.Corpus.SQLitePath, "SQLite database file")
	fs.Parse(args)
	if *db == "" {
		return fmt.Errorf("no sqlite database given (-db or corpus.sqlite_path)")
	}

	records, err := corpus.JSONLSource{Path: *in}.Records(ctx)
	if err != nil {
		return err
	}
	src, err := corpus.OpenSQLite(*db, cfg.Corpus.SQLiteTable)
	if err != nil {
		return err
	}
	defer src.Close()
	if err := src.Write(ctx, records); err != nil {
		return err
	}
	logger.Info("Wrote %d records to %s (%s)", len(records), *db, cfg.Corpus.SQLiteTable)
	return nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
