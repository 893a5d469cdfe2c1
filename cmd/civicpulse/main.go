package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/civicpulse/civicpulse/internal/batch"
	"github.com/civicpulse/civicpulse/internal/config"
	"github.com/civicpulse/civicpulse/internal/db"
	"github.com/civicpulse/civicpulse/internal/extract"
	"github.com/civicpulse/civicpulse/internal/fetch"
	"github.com/civicpulse/civicpulse/internal/ledger"
	"github.com/civicpulse/civicpulse/internal/scrape"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
	dbPathFlag string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "civicpulse",
		Short: "Municipal meeting document pipeline",
		Long: `CivicPulse ingests agendas and minutes from local-government web
portals into a content-addressed ledger, then extracts their text
(with OCR fallback for scanned pages) into per-document artifacts.`,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "Path to the ledger database (default: data dir)")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(statsCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
			} else {
				fmt.Printf("civicpulse %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the data directory and ledger database",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK      bool   `json:"ok"`
				Message string `json:"message,omitempty"`
				DataDir string `json:"data_dir,omitempty"`
				DBPath  string `json:"db_path,omitempty"`
			}

			dataDir, err := config.GetDataDir()
			if err != nil {
				exitError(Result{Message: fmt.Sprintf("Failed to get data directory: %v", err)})
			}
			if err := os.MkdirAll(dataDir, 0755); err != nil {
				exitError(Result{Message: fmt.Sprintf("Failed to create data directory: %v", err)})
			}

			dbPath, err := resolveDBPath()
			if err != nil {
				exitError(Result{Message: fmt.Sprintf("Failed to resolve database path: %v", err)})
			}
			if err := db.Init(dbPath); err != nil {
				exitError(Result{Message: fmt.Sprintf("Failed to initialize database: %v", err)})
			}

			result := Result{OK: true, Message: "CivicPulse initialized successfully", DataDir: dataDir, DBPath: dbPath}
			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Data directory: %s\n", result.DataDir)
				fmt.Printf("✓ Database: %s\n", result.DBPath)
			}
		},
	}
}

// fetchResult mirrors the single-URL ingest outcome: the ledger status
// plus where the bytes landed on disk when they were new.
type fetchResult struct {
	Status     string `json:"status"`
	DocumentID string `json:"document_id,omitempty"`
	Bytes      int64  `json:"bytes"`
	URL        string `json:"url"`
	SavedPath  string `json:"saved_path,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func fetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download a single PDF URL into the ledger",
		Run: func(cmd *cobra.Command, args []string) {
			configPath, _ := cmd.Flags().GetString("config")
			sourceID, _ := cmd.Flags().GetString("source-id")
			rawURL, _ := cmd.Flags().GetString("url")
			outDir, _ := cmd.Flags().GetString("outdir")
			filename, _ := cmd.Flags().GetString("filename")

			src, err := config.LoadSource(configPath)
			if err != nil {
				exitFetchError(rawURL, fmt.Sprintf("load config: %v", err))
			}
			if sourceID == "" {
				sourceID = src.SourceID
			}

			store, closeStore, err := openLedger()
			if err != nil {
				exitFetchError(rawURL, err.Error())
			}
			defer closeStore()

			fetcher := fetch.New(fetch.Config{Delay: src.Delay()})
			result := ingestURL(cmd.Context(), store, fetcher, src, sourceID, rawURL, outDir, filename)
			if result.Status == "error" {
				if jsonOutput {
					printJSON(result)
				} else {
					fmt.Fprintf(os.Stderr, "Error: %s\n", result.Reason)
				}
				os.Exit(1)
			}

			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("%s: %s (%d bytes)\n", result.Status, result.URL, result.Bytes)
				if result.SavedPath != "" {
					fmt.Printf("  saved to %s\n", result.SavedPath)
				}
			}
		},
	}

	cmd.Flags().String("config", "", "Path to source config YAML")
	cmd.Flags().String("source-id", "", "Source identifier (default: config source_id)")
	cmd.Flags().String("url", "", "URL to download")
	cmd.Flags().String("outdir", "data/sandbox", "Directory for downloaded files")
	cmd.Flags().String("filename", "", "Optional filename override")
	cmd.MarkFlagRequired("config")
	cmd.MarkFlagRequired("url")
	return cmd
}

func scrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Download every PDF linked from an agenda page",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK         bool   `json:"ok"`
				Message    string `json:"message,omitempty"`
				Discovered int    `json:"discovered"`
				Created    int    `json:"created"`
				Duplicates int    `json:"duplicates"`
				Skipped    int    `json:"skipped"`
				Errors     int    `json:"errors"`
			}

			configPath, _ := cmd.Flags().GetString("config")
			pageURL, _ := cmd.Flags().GetString("url")
			outDir, _ := cmd.Flags().GetString("outdir")

			src, err := config.LoadSource(configPath)
			if err != nil {
				exitError(Result{Message: fmt.Sprintf("Failed to load config: %v", err)})
			}
			if pageURL == "" {
				pageURL = src.BaseURL
			}
			if pageURL == "" {
				exitError(Result{Message: "No page URL: pass --url or set base_url in the config"})
			}

			store, closeStore, err := openLedger()
			if err != nil {
				exitError(Result{Message: err.Error()})
			}
			defer closeStore()

			fetcher := fetch.New(fetch.Config{Delay: src.Delay()})
			page, _, err := fetcher.Fetch(cmd.Context(), pageURL)
			if err != nil {
				exitError(Result{Message: fmt.Sprintf("Failed to fetch page: %v", err)})
			}

			links, err := scrape.ExtractPDFLinks(bytes.NewReader(page), pageURL)
			if err != nil {
				exitError(Result{Message: fmt.Sprintf("Failed to parse page: %v", err)})
			}

			result := Result{OK: true, Discovered: len(links)}
			for _, link := range links {
				// Cheap pre-check saves the download entirely; content
				// dedupe still happens on submit.
				if exists, err := store.ExistsByURL(cmd.Context(), link); err == nil && exists {
					result.Skipped++
					continue
				}

				r := ingestURL(cmd.Context(), store, fetcher, src, src.SourceID, link, outDir, "")
				switch r.Status {
				case string(ledger.StatusCreated):
					result.Created++
				case string(ledger.StatusDuplicate):
					result.Duplicates++
				default:
					result.Errors++
					fmt.Fprintf(os.Stderr, "  %s: %s\n", link, r.Reason)
				}
			}

			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("Discovered %d PDF links: %d created, %d duplicates, %d skipped, %d errors\n",
					result.Discovered, result.Created, result.Duplicates, result.Skipped, result.Errors)
			}
		},
	}

	cmd.Flags().String("config", "", "Path to source config YAML")
	cmd.Flags().String("url", "", "Agenda page URL (default: config base_url)")
	cmd.Flags().String("outdir", "data/sandbox", "Directory for downloaded files")
	cmd.MarkFlagRequired("config")
	return cmd
}

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Extract text from a directory of stored PDFs",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK        bool            `json:"ok"`
				Message   string          `json:"message,omitempty"`
				Processed int             `json:"processed"`
				Summary   string          `json:"summary_csv,omitempty"`
				Metrics   json.RawMessage `json:"metrics,omitempty"`
			}

			input, _ := cmd.Flags().GetString("input")
			output, _ := cmd.Flags().GetString("output")
			keywords, _ := cmd.Flags().GetStringSlice("keywords")
			workers, _ := cmd.Flags().GetInt("ocr-workers")
			naming, _ := cmd.Flags().GetString("naming")

			switch batch.Naming(naming) {
			case batch.NamingRelPath, batch.NamingBasename:
			default:
				exitError(Result{Message: fmt.Sprintf("Unknown naming strategy %q (want relpath or basename)", naming)})
			}

			metrics := batch.NewMetrics()
			engine := extract.New(extract.Config{OCRWorkers: workers})
			proc := batch.New(engine, batch.Options{Naming: batch.Naming(naming), Metrics: metrics})

			rows, err := proc.Process(cmd.Context(), input, output, keywords)
			if err != nil {
				exitError(Result{Message: fmt.Sprintf("Batch failed: %v", err), Processed: len(rows)})
			}

			result := Result{OK: true, Processed: len(rows), Metrics: metrics.SnapshotJSON()}
			if len(rows) > 0 {
				result.Summary = filepath.Join(output, "logs", "summary.csv")
			}
			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("Processed %d documents (%d skipped)\n", result.Processed, metrics.Skipped)
				if result.Summary != "" {
					fmt.Printf("Summary: %s\n", result.Summary)
				}
			}
		},
	}

	cmd.Flags().String("input", "", "Directory of PDFs to process")
	cmd.Flags().String("output", "", "Directory for extracted artifacts")
	cmd.Flags().StringSlice("keywords", nil, "Keywords to count in extracted text")
	cmd.Flags().Int("ocr-workers", 0, "Concurrent OCR workers (default: engine default)")
	cmd.Flags().String("naming", string(batch.NamingRelPath), "Output naming strategy: relpath or basename")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")
	return cmd
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingested documents",
		Run: func(cmd *cobra.Command, args []string) {
			type Row struct {
				ID          string `json:"id"`
				SourceID    string `json:"source_id"`
				FileURL     string `json:"file_url"`
				ContentHash string `json:"content_hash"`
				BytesSize   int64  `json:"bytes_size"`
				CreatedAt   string `json:"created_at"`
			}
			type Result struct {
				OK        bool   `json:"ok"`
				Message   string `json:"message,omitempty"`
				Documents []Row  `json:"documents"`
			}

			sourceID, _ := cmd.Flags().GetString("source")
			urlContains, _ := cmd.Flags().GetString("url-contains")
			sinceStr, _ := cmd.Flags().GetString("since")
			untilStr, _ := cmd.Flags().GetString("until")
			limit, _ := cmd.Flags().GetInt("limit")

			filters := ledger.DocumentFilters{
				SourceID:    sourceID,
				URLContains: urlContains,
				Limit:       limit,
			}
			if sinceStr != "" {
				t, err := time.Parse("2006-01-02", sinceStr)
				if err != nil {
					exitError(Result{Message: fmt.Sprintf("Invalid --since date %q (want YYYY-MM-DD)", sinceStr)})
				}
				filters.Since = t
			}
			if untilStr != "" {
				t, err := time.Parse("2006-01-02", untilStr)
				if err != nil {
					exitError(Result{Message: fmt.Sprintf("Invalid --until date %q (want YYYY-MM-DD)", untilStr)})
				}
				// Make --until inclusive of the named day.
				filters.Until = t.Add(24*time.Hour - time.Second)
			}

			store, closeStore, err := openLedger()
			if err != nil {
				exitError(Result{Message: err.Error()})
			}
			defer closeStore()

			docs, err := store.ListDocuments(cmd.Context(), filters)
			if err != nil {
				exitError(Result{Message: fmt.Sprintf("Failed to list documents: %v", err)})
			}

			result := Result{OK: true, Documents: make([]Row, 0, len(docs))}
			for _, d := range docs {
				result.Documents = append(result.Documents, Row{
					ID:          d.ID,
					SourceID:    d.SourceID,
					FileURL:     d.FileURL,
					ContentHash: d.ContentHash,
					BytesSize:   d.BytesSize,
					CreatedAt:   d.CreatedAt,
				})
			}

			if jsonOutput {
				printJSON(result)
			} else {
				for _, d := range result.Documents {
					fmt.Printf("%s  %s  %8d  %s\n", d.CreatedAt, d.SourceID, d.BytesSize, d.FileURL)
				}
				fmt.Printf("%d documents\n", len(result.Documents))
			}
		},
	}

	cmd.Flags().String("source", "", "Filter by source identifier")
	cmd.Flags().String("url-contains", "", "Filter by URL substring")
	cmd.Flags().String("since", "", "Only documents ingested on or after this date (YYYY-MM-DD)")
	cmd.Flags().String("until", "", "Only documents ingested on or before this date (YYYY-MM-DD)")
	cmd.Flags().Int("limit", 100, "Maximum rows to return")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show ledger document counts",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK       bool           `json:"ok"`
				Message  string         `json:"message,omitempty"`
				Total    int            `json:"total"`
				BySource map[string]int `json:"by_source,omitempty"`
			}

			store, closeStore, err := openLedger()
			if err != nil {
				exitError(Result{Message: err.Error()})
			}
			defer closeStore()

			total, err := store.Count(cmd.Context())
			if err != nil {
				exitError(Result{Message: fmt.Sprintf("Failed to count documents: %v", err)})
			}
			bySource, err := store.CountBySource(cmd.Context())
			if err != nil {
				exitError(Result{Message: fmt.Sprintf("Failed to count by source: %v", err)})
			}

			result := Result{OK: true, Total: total, BySource: bySource}
			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("Documents: %d\n", result.Total)
				for source, n := range result.BySource {
					fmt.Printf("  %s: %d\n", source, n)
				}
			}
		},
	}
}

// ingestURL runs the single-URL pipeline: domain check, download, PDF
// sniff, ledger submit, and a timestamped copy on disk when the
// content is new.
func ingestURL(ctx context.Context, store *ledger.Store, fetcher *fetch.Fetcher, src *config.Source, sourceID, rawURL, outDir, filename string) fetchResult {
	result := fetchResult{Status: "error", URL: rawURL}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		result.Reason = fmt.Sprintf("invalid URL: %v", err)
		return result
	}
	if !fetch.IsAllowedDomain(parsed.Hostname(), src.AllowedDomains) {
		result.Reason = fmt.Sprintf("domain %q not in allowed domains %v", parsed.Hostname(), src.AllowedDomains)
		return result
	}

	content, contentType, err := fetcher.Fetch(ctx, rawURL)
	if err != nil {
		result.Reason = err.Error()
		return result
	}
	if !fetch.IsPDFContent(contentType, content) {
		result.Reason = "not a PDF"
		return result
	}

	submitted, err := store.SubmitIfNew(ctx, sourceID, rawURL, content)
	if err != nil {
		result.Reason = err.Error()
		return result
	}
	result.Status = string(submitted.Status)
	result.DocumentID = submitted.DocumentID
	result.Bytes = submitted.BytesSize

	// Only newly created content lands on disk; duplicates already
	// have a stored copy from their first submission.
	if submitted.Status == ledger.StatusCreated && outDir != "" {
		if filename == "" {
			filename = filepath.Base(parsed.Path)
			if filename == "" || filename == "." || filename == "/" {
				filename = "document.pdf"
			}
		}
		timestamp := time.Now().UTC().Format("2006-01-02_150405")
		dir := filepath.Join(outDir, sourceID)
		if err := os.MkdirAll(dir, 0755); err != nil {
			result.Reason = fmt.Sprintf("create output directory: %v", err)
			return result
		}
		savedPath := filepath.Join(dir, timestamp+"_"+filename)
		if err := os.WriteFile(savedPath, content, 0644); err != nil {
			result.Reason = fmt.Sprintf("save file: %v", err)
			return result
		}
		result.SavedPath = savedPath
	}

	return result
}

// openLedger opens the database and wraps it in a Store. The returned
// func closes the handle.
func openLedger() (*ledger.Store, func(), error) {
	dbPath, err := resolveDBPath()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve database path: %w", err)
	}
	conn, err := db.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	store, err := ledger.NewStore(conn)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return store, func() { conn.Close() }, nil
}

func resolveDBPath() (string, error) {
	if dbPathFlag != "" {
		return dbPathFlag, nil
	}
	return config.DefaultDBPath()
}

// exitError prints the result (JSON or human-readable) and exits 1.
// The result must carry a Message field via its JSON encoding.
func exitError(result any) {
	if jsonOutput {
		printJSON(result)
	} else {
		data, _ := json.Marshal(result)
		var m struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &m)
		fmt.Fprintf(os.Stderr, "Error: %s\n", m.Message)
	}
	os.Exit(1)
}

func exitFetchError(rawURL, reason string) {
	result := fetchResult{Status: "error", URL: rawURL, Reason: reason}
	if jsonOutput {
		printJSON(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", reason)
	}
	os.Exit(1)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
