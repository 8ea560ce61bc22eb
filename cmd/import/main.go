package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"docsift/cmd"
	"docsift/internal/config"
	"docsift/internal/ingest"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

func main() {
	asDataset := flag.Bool("dataset", false, "import the files as datasets instead of documents")
	folder := flag.String("folder", "", "folder id to place imported documents in")

	cmd.LoadEnvFile()

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: import [-env file] [-dataset] [-folder id] file...")
		os.Exit(2)
	}

	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	var folderId uuid.NullUUID
	if *folder != "" {
		id, err := uuid.Parse(*folder)
		if err != nil {
			log.Fatalf("invalid folder id %q: %v", *folder, err)
		}
		folderId = uuid.NullUUID{UUID: id, Valid: true}
	}

	ctx := context.Background()
	app := cmd.NewApp(ctx, cfg)

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("importing"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)

	importer := ingest.NewImporter(app.Repo)
	importer.OnFileDone = func(ingest.ImportResult) { _ = bar.Add(1) }

	var results []ingest.ImportResult
	if *asDataset {
		results = importer.ImportFiles(ctx, paths, cfg.AnalysisConcurrency)
	} else {
		results = importer.ImportDocuments(ctx, paths, folderId, cfg.AnalysisConcurrency)
	}
	_ = bar.Finish()
	app.Close()

	for _, res := range results {
		switch {
		case res.Err != nil:
			fmt.Printf("FAILED  %s: %v\n", res.Path, res.Err)
		case res.Dataset != nil:
			fmt.Printf("OK      %s -> dataset %s (%d rows)\n", res.Path, res.Dataset.Id, res.Dataset.RowCount)
		case res.Document != nil:
			fmt.Printf("OK      %s -> document %s\n", res.Path, res.Document.Id)
		}
	}

	failed := ingest.Failed(results)
	fmt.Printf("%d imported, %d failed\n", len(results)-failed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
