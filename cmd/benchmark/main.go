// Benchmark tool for scoring labelled transactions against a running Kestrel.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/labelled.csv -url http://localhost:8080
//
// The CSV header names the transaction fields (amount, type, origin_country,
// dest_country, hour, day_of_week, origin_balance, dest_balance,
// user_transaction_count) plus optional dest_user and is_fraud columns.
// Rows are sent in batches to /detect-fraud/batch and the predictions are
// compared with the is_fraud labels.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Row is one labelled transaction from the input file.
type Row struct {
	Tx      domain.TransactionInput
	IsFraud bool
	Labeled bool
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64
	FalsePositives int64
	TrueNegatives  int64
	FalseNegatives int64

	Unlabeled   int64
	ItemErrors  int64
	BatchErrors int64

	Batches          int64
	RequestLatencyMs int64
	ServerTimeMs     int64

	mu sync.Mutex
}

func main() {
	csvPath := flag.String("csv", "", "Path to labelled transaction CSV")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	batchSize := flag.Int("batch", domain.MaxBatchSize, "Transactions per batch request")
	workers := flag.Int("workers", 4, "Number of concurrent batch requests")
	verbose := flag.Bool("verbose", false, "Print each batch result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/labelled.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *batchSize < 1 || *batchSize > domain.MaxBatchSize {
		fmt.Printf("ERROR: -batch must be between 1 and %d\n", domain.MaxBatchSize)
		os.Exit(1)
	}

	fmt.Println("KESTREL BENCHMARK")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Batch Size:  %d\n", *batchSize)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	client := &http.Client{Timeout: 30 * time.Second}
	if err := checkHealth(client, *baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run ./cmd/kestrel")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	rows, skipped, err := ReadRows(file, *limit)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d transactions (%d malformed rows skipped)\n", len(rows), skipped)
	if len(rows) == 0 {
		os.Exit(1)
	}

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	start := time.Now()
	m := run(client, *baseURL, *tenantID, Chunk(rows, *batchSize), *workers, *verbose)
	printResults(m, time.Since(start))
}

func checkHealth(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// ReadRows parses up to limit rows (0 = all) and reports how many malformed rows were skipped.
// Columns are matched by header name, case-insensitively.
func ReadRows(r io.Reader, limit int) ([]Row, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, name := range domain.RequiredFields {
		if _, ok := colIndex[name]; !ok {
			return nil, 0, fmt.Errorf("missing column %q", name)
		}
	}

	var rows []Row
	skipped := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		if len(record) < len(header) {
			skipped++
			continue
		}

		col := func(name string) string {
			if i, ok := colIndex[name]; ok {
				return strings.TrimSpace(record[i])
			}
			return ""
		}

		row := Row{Tx: domain.TransactionInput{
			Amount:               col("amount"),
			Type:                 col("type"),
			OriginCountry:        col("origin_country"),
			DestCountry:          col("dest_country"),
			Hour:                 col("hour"),
			DayOfWeek:            col("day_of_week"),
			OriginBalance:        col("origin_balance"),
			DestBalance:          col("dest_balance"),
			UserTransactionCount: col("user_transaction_count"),
			DestUser:             col("dest_user"),
		}}
		switch strings.ToLower(col("is_fraud")) {
		case "1", "true":
			row.IsFraud, row.Labeled = true, true
		case "0", "false":
			row.Labeled = true
		}
		rows = append(rows, row)

		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	return rows, skipped, nil
}

// Chunk splits rows into consecutive batches of at most size rows.
func Chunk(rows []Row, size int) [][]Row {
	var batches [][]Row
	for len(rows) > 0 {
		n := min(size, len(rows))
		batches = append(batches, rows[:n])
		rows = rows[n:]
	}
	return batches
}

func run(client *http.Client, baseURL, tenantID string, batches [][]Row, numWorkers int, verbose bool) *Metrics {
	m := &Metrics{}
	work := make(chan int, len(batches))
	var wg sync.WaitGroup

	for i := 0; i < max(numWorkers, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				batch := batches[idx]
				start := time.Now()
				result, err := detectBatch(client, baseURL, tenantID, batch)
				elapsed := time.Since(start).Milliseconds()

				if err != nil {
					m.mu.Lock()
					m.BatchErrors++
					m.mu.Unlock()
					if verbose {
						fmt.Printf("ERROR: batch %d -> %v\n", idx, err)
					}
					continue
				}

				m.Record(batch, result, elapsed)
				if verbose {
					fmt.Printf("batch %4d | size %3d | failed %3d | server %5d ms | round trip %5d ms\n",
						idx, result.BatchSize, result.Failed(), result.TotalProcessingTimeMs, elapsed)
				}
			}
		}()
	}

	for i := range batches {
		work <- i
	}
	close(work)
	wg.Wait()

	return m
}

func detectBatch(client *http.Client, baseURL, tenantID string, batch []Row) (*domain.BatchResult, error) {
	txs := make([]domain.TransactionInput, len(batch))
	for i, row := range batch {
		txs[i] = row.Tx
	}
	body, err := json.Marshal(map[string]any{"transactions": txs})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/detect-fraud/batch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, e.Error)
	}

	var result domain.BatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Results) != len(batch) {
		return nil, fmt.Errorf("expected %d results, got %d", len(batch), len(result.Results))
	}
	return &result, nil
}

// Record folds one batch response into the confusion matrix.
func (m *Metrics) Record(batch []Row, result *domain.BatchResult, latencyMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Batches++
	m.RequestLatencyMs += latencyMs
	m.ServerTimeMs += result.TotalProcessingTimeMs

	for _, item := range result.Results {
		if item.TransactionIndex < 0 || item.TransactionIndex >= len(batch) {
			m.ItemErrors++
			continue
		}
		if !item.OK() {
			m.ItemErrors++
			continue
		}
		row := batch[item.TransactionIndex]
		if !row.Labeled {
			m.Unlabeled++
			continue
		}

		predicted := item.Result.IsFraudPredicted
		switch {
		case predicted && row.IsFraud:
			m.TruePositives++
		case predicted && !row.IsFraud:
			m.FalsePositives++
		case !predicted && !row.IsFraud:
			m.TrueNegatives++
		default:
			m.FalseNegatives++
		}
	}
}

// Precision is TP / (TP + FP), or 0 without positive predictions.
func (m *Metrics) Precision() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
}

// Recall is TP / (TP + FN), or 0 without actual fraud.
func (m *Metrics) Recall() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
}

// F1 is the harmonic mean of precision and recall.
func (m *Metrics) F1() float64 {
	p, r := m.Precision(), m.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Accuracy is the share of labelled predictions that were correct.
func (m *Metrics) Accuracy() float64 {
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	return ratio(m.TruePositives+m.TrueNegatives, total)
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	scored := m.TruePositives + m.FalsePositives + m.TrueNegatives + m.FalseNegatives
	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Labelled Scored:  %d\n", scored)
	fmt.Printf("   Actual Fraud:     %d\n", m.TruePositives+m.FalseNegatives)
	fmt.Printf("   Unlabelled:       %d\n", m.Unlabeled)
	fmt.Printf("   Item Errors:      %d\n", m.ItemErrors)
	fmt.Printf("   Batch Errors:     %d\n", m.BatchErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                   FRAUD     LEGIT")
	fmt.Printf("   Actual  FRAUD  %8d  %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("           LEGIT  %8d  %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f\n", m.Precision())
	fmt.Printf("   Recall:     %.4f\n", m.Recall())
	fmt.Printf("   F1-Score:   %.4f\n", m.F1())
	fmt.Printf("   Accuracy:   %.4f\n", m.Accuracy())

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.Batches > 0 {
		fmt.Printf("   Avg Round Trip:   %.2f ms/batch\n", float64(m.RequestLatencyMs)/float64(m.Batches))
		fmt.Printf("   Avg Server Time:  %.2f ms/batch\n", float64(m.ServerTimeMs)/float64(m.Batches))
	}
	if seconds := duration.Seconds(); seconds > 0 {
		fmt.Printf("   Throughput:       %.2f tx/sec\n", float64(scored+m.Unlabeled+m.ItemErrors)/seconds)
	}
	fmt.Println()
}
