// Batch scoring tool for running a farmer roster through Shamba.
//
// Usage:
//
//	go run ./cmd/batchscore -csv farmers.csv -url http://localhost:8080 -workers 8
//
// The CSV needs a header with identity, latitude, longitude and crop_type
// columns; farm_size_acres is optional. Each row is posted to /score and the
// tool prints counts per risk level, approval rate, mean score and latency
// percentiles.
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
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FarmerRow is one roster entry.
type FarmerRow struct {
	Identity      string   `json:"identity"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	CropType      string   `json:"cropType"`
	FarmSizeAcres *float64 `json:"farmSizeAcres,omitempty"`
}

// ScoreResponse is the subset of the /score response the tool reads.
type ScoreResponse struct {
	Identity           string  `json:"identity"`
	Score              float64 `json:"score"`
	RiskLevel          string  `json:"riskLevel"`
	FraudScore         float64 `json:"fraudScore"`
	LoanRecommendation struct {
		Approved  bool    `json:"approved"`
		AmountKsh float64 `json:"amountKsh"`
	} `json:"loanRecommendation"`
}

// Outcome is the result of scoring one row.
type Outcome struct {
	Row     FarmerRow
	Result  *ScoreResponse
	Err     error
	Latency time.Duration
}

// Summary aggregates outcomes.
type Summary struct {
	Total      int
	Errors     int
	Throttled  int
	ByRisk     map[string]int
	Approved   int
	MeanScore  float64
	FraudGated int
	P50        time.Duration
	P95        time.Duration
	P99        time.Duration
}

var errThrottled = errors.New("throttled")

func main() {
	csvPath := flag.String("csv", "", "Path to farmer roster CSV")
	baseURL := flag.String("url", "http://localhost:8080", "Shamba base URL")
	workers := flag.Int("workers", 8, "Number of concurrent workers")
	limit := flag.Int("limit", 0, "Maximum rows to score (0 = all)")
	verbose := flag.Bool("verbose", false, "Print each result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: batchscore -csv farmers.csv [-url http://localhost:8080] [-workers 8]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Shamba not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}
	fmt.Println("✓ Shamba is healthy")

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	rows, skipped, err := readFarmersCSV(file, *limit)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d farmers (%d malformed rows skipped)\n", len(rows), skipped)

	fmt.Printf("\nScoring with %d workers...\n", *workers)
	start := time.Now()
	outcomes := run(rows, *baseURL, *workers, *verbose)
	duration := time.Since(start)

	printSummary(summarize(outcomes), duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readFarmersCSV parses the roster. Rows with missing or unparsable required
// fields are skipped and counted. limit of 0 reads everything.
func readFarmersCSV(r io.Reader, limit int) ([]FarmerRow, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"identity", "latitude", "longitude", "crop_type"} {
		if _, ok := colIndex[col]; !ok {
			return nil, 0, fmt.Errorf("missing column %q", col)
		}
	}

	field := func(record []string, col string) string {
		i, ok := colIndex[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []FarmerRow
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		lat, latErr := strconv.ParseFloat(field(record, "latitude"), 64)
		lon, lonErr := strconv.ParseFloat(field(record, "longitude"), 64)
		row := FarmerRow{
			Identity:  field(record, "identity"),
			Latitude:  lat,
			Longitude: lon,
			CropType:  field(record, "crop_type"),
		}
		if latErr != nil || lonErr != nil || row.Identity == "" || row.CropType == "" {
			skipped++
			continue
		}
		if v := field(record, "farm_size_acres"); v != "" {
			if acres, err := strconv.ParseFloat(v, 64); err == nil {
				row.FarmSizeAcres = &acres
			}
		}

		rows = append(rows, row)
		if limit > 0 && len(rows) >= limit {
			break
		}
	}

	return rows, skipped, nil
}

func run(rows []FarmerRow, baseURL string, numWorkers int, verbose bool) []Outcome {
	if numWorkers <= 0 {
		numWorkers = 1
	}

	work := make(chan int, 100)
	outcomes := make([]Outcome, len(rows))
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 45 * time.Second}

			for idx := range work {
				row := rows[idx]
				start := time.Now()
				result, err := scoreFarmer(client, baseURL, row)
				outcomes[idx] = Outcome{
					Row:     row,
					Result:  result,
					Err:     err,
					Latency: time.Since(start),
				}

				if verbose {
					if err != nil {
						fmt.Printf("ERROR: %s -> %v\n", row.Identity, err)
						continue
					}
					fmt.Printf("%-14s | %-8s | score %.2f | %-11s | fraud %.2f | approved %v\n",
						result.Identity, row.CropType, result.Score, result.RiskLevel,
						result.FraudScore, result.LoanRecommendation.Approved)
				}
			}
		}()
	}

	for i := range rows {
		work <- i
	}
	close(work)
	wg.Wait()

	return outcomes
}

func scoreFarmer(client *http.Client, baseURL string, row FarmerRow) (*ScoreResponse, error) {
	body, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errThrottled
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// fraudGate mirrors the server's rejection threshold for reporting.
const fraudGate = 0.6

func summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes), ByRisk: make(map[string]int)}

	var scoreSum float64
	latencies := make([]time.Duration, 0, len(outcomes))
	for _, o := range outcomes {
		latencies = append(latencies, o.Latency)
		if o.Err != nil {
			s.Errors++
			if errors.Is(o.Err, errThrottled) {
				s.Throttled++
			}
			continue
		}
		s.ByRisk[o.Result.RiskLevel]++
		scoreSum += o.Result.Score
		if o.Result.LoanRecommendation.Approved {
			s.Approved++
		}
		if o.Result.FraudScore > fraudGate {
			s.FraudGated++
		}
	}

	if scored := s.Total - s.Errors; scored > 0 {
		s.MeanScore = scoreSum / float64(scored)
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	s.P50 = percentile(latencies, 0.50)
	s.P95 = percentile(latencies, 0.95)
	s.P99 = percentile(latencies, 0.99)
	return s
}

// percentile uses nearest rank over sorted values.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p*float64(len(sorted))+0.999999) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

func printSummary(s Summary, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                    BATCH SCORING RESULTS                      ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	scored := s.Total - s.Errors
	fmt.Printf("\n📊 ROSTER\n")
	fmt.Printf("   Total:        %d\n", s.Total)
	fmt.Printf("   Scored:       %d\n", scored)
	fmt.Printf("   Errors:       %d (throttled %d)\n", s.Errors, s.Throttled)

	fmt.Printf("\n📈 RISK LEVELS\n")
	levels := make([]string, 0, len(s.ByRisk))
	for level := range s.ByRisk {
		levels = append(levels, level)
	}
	sort.Strings(levels)
	for _, level := range levels {
		fmt.Printf("   %-12s  %d\n", level, s.ByRisk[level])
	}

	fmt.Printf("\n💰 DECISIONS\n")
	if scored > 0 {
		fmt.Printf("   Approval rate:  %.2f%% (%d / %d)\n", 100*float64(s.Approved)/float64(scored), s.Approved, scored)
		fmt.Printf("   Fraud gated:    %d\n", s.FraudGated)
		fmt.Printf("   Mean score:     %.4f\n", s.MeanScore)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration: %v\n", duration.Round(time.Millisecond))
	fmt.Printf("   p50 latency:    %v\n", s.P50.Round(time.Millisecond))
	fmt.Printf("   p95 latency:    %v\n", s.P95.Round(time.Millisecond))
	fmt.Printf("   p99 latency:    %v\n", s.P99.Round(time.Millisecond))
	if s.Total > 0 && duration > 0 {
		fmt.Printf("   Throughput:     %.2f farmers/sec\n", float64(s.Total)/duration.Seconds())
	}
	fmt.Println()
}
