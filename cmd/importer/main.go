package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/bookcatalog/internal/application/batch"
	"github.com/cassiomorais/bookcatalog/internal/bootstrap"
)

func main() {
	var (
		file            string
		validateOnly    bool
		continueOnError bool
		updateExisting  bool
	)

	flag.StringVar(&file, "file", "", "Path to the CSV file to import")
	flag.BoolVar(&validateOnly, "validate-only", false, "Validate rows without writing anything")
	flag.BoolVar(&continueOnError, "continue-on-error", false, "Commit valid rows even when some rows fail")
	flag.BoolVar(&updateExisting, "update-existing", false, "Update books matched by ISBN or title instead of failing")
	flag.Parse()

	if file == "" {
		fmt.Fprintln(os.Stderr, "usage: importer -file <books.csv> [-validate-only] [-continue-on-error] [-update-existing]")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := bootstrap.New(ctx, "bookcatalog-importer", "bookcatalog")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	rows, err := readRows(file)
	if err != nil {
		app.Logger.Fatal().Err(err).Str("file", file).Msg("failed to read input")
	}

	result, err := app.Batch.ImportBooks(ctx, rows, batch.Options{
		ChunkSize:       app.Config.Batch.ChunkSize,
		ContinueOnError: continueOnError,
		ValidateOnly:    validateOnly,
		UpdateExisting:  updateExisting,
	})
	if err != nil {
		app.Logger.Error().Err(err).Msg("import aborted, all rows rolled back")
		os.Exit(1)
	}

	app.Logger.Info().
		Int("total", result.TotalProcessed).
		Int("succeeded", result.Successful).
		Int("failed", result.Failed).
		Int("created", len(result.Created)).
		Int("updated", len(result.Updated)).
		Bool("validate_only", validateOnly).
		Msg("import finished")

	for _, itemErr := range result.Errors {
		app.Logger.Warn().
			Int("row", itemErr.Row).
			Str("input", itemErr.Input).
			Str("reason", itemErr.Message).
			Msg("row failed")
	}

	if result.Failed > 0 {
		os.Exit(1)
	}
}

// readRows tokenizes the CSV into row-records keyed by header name. The
// header-to-field mapping itself (including localized synonyms) happens
// in the catalog package.
func readRows(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var rows []map[string]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
