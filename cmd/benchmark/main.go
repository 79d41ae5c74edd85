// Benchmark tool for testing Kestrel against labeled session data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/sessions.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labeled survey session data (with bot labels)
//   2. Sends each session to Kestrel for analysis
//   3. Compares Kestrel's classification (BOT/HUMAN) with actual labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
//
// Expected CSV columns:
//   respondent_id, survey_id, ip, duration_secs, keystroke, mouse,
//   timing, device, network, text_quality, response_text, is_bot
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledSession represents a row from a labeled session dataset.
type LabeledSession struct {
	RespondentID string
	SurveyID     string
	IPAddress    string
	DurationSecs int
	Behavioral   map[string]float64
	TextQuality  *float64
	ResponseText string
	IsBot        bool
}

// AnalyzeRequest is the Kestrel API request format.
type AnalyzeRequest struct {
	SurveyID         string             `json:"surveyId"`
	RespondentID     string             `json:"respondentId"`
	IPAddress        string             `json:"ipAddress,omitempty"`
	StartedAt        time.Time          `json:"startedAt"`
	CompletedAt      time.Time          `json:"completedAt"`
	Responses        []Response         `json:"responses,omitempty"`
	BehavioralScores map[string]float64 `json:"behavioralScores,omitempty"`
	TextQualityScore *float64           `json:"textQualityScore,omitempty"`
}

type Response struct {
	QuestionID  string    `json:"questionId"`
	Text        string    `json:"text"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// AnalyzeResponse is the Kestrel API response format.
type AnalyzeResponse struct {
	VerdictID      string   `json:"verdictId"`
	Classification string   `json:"classification"` // "BOT" or "HUMAN"
	Confidence     float64  `json:"confidence"`
	RiskLevel      string   `json:"riskLevel"`
	Flags          []string `json:"flags"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Bot detected as BOT
	FalsePositives int64 // Human detected as BOT
	TrueNegatives  int64 // Human detected as HUMAN
	FalseNegatives int64 // Bot detected as HUMAN (missed bot!)

	TotalProcessed int64
	TotalBots      int64
	TotalHumans    int64
	TotalErrors    int64
	TotalNoSignal  int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled session CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum sessions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	botsOnly := flag.Bool("bots-only", false, "Only test bot sessions")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for human sessions (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each session result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/sessions.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("KESTREL BENCHMARK - Survey Bot Detection")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Bots Only:   %v\n", *botsOnly)
	fmt.Printf("Sample Rate: %.2f\n", *sampleRate)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	fmt.Printf("\nReading session data from %s...\n", *csvPath)
	sessions, err := readSessionCSV(*csvPath, *limit, *botsOnly, *sampleRate)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d sessions\n", len(sessions))

	botCount := 0
	for _, s := range sessions {
		if s.IsBot {
			botCount++
		}
	}
	fmt.Printf("  - Bots:   %d (%.2f%%)\n", botCount, 100*float64(botCount)/float64(len(sessions)))
	fmt.Printf("  - Humans: %d (%.2f%%)\n", len(sessions)-botCount, 100*float64(len(sessions)-botCount)/float64(len(sessions)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(sessions, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
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

var behavioralMethods = []string{"keystroke", "mouse", "timing", "device", "network"}

func readSessionCSV(path string, limit int, botsOnly bool, sampleRate float64) ([]LabeledSession, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	var sessions []LabeledSession
	sampleCounter := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isBot := record[colIndex["is_bot"]] == "1"

		if botsOnly && !isBot {
			continue
		}

		// Sample human sessions
		if !isBot && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		durationSecs, _ := strconv.Atoi(record[colIndex["duration_secs"]])
		if durationSecs <= 0 {
			durationSecs = 300
		}

		behavioral := make(map[string]float64, len(behavioralMethods))
		for _, method := range behavioralMethods {
			idx, ok := colIndex[method]
			if !ok || record[idx] == "" {
				continue
			}
			if v, err := strconv.ParseFloat(record[idx], 64); err == nil {
				behavioral[method] = v
			}
		}

		var textQuality *float64
		if idx, ok := colIndex["text_quality"]; ok && record[idx] != "" {
			if v, err := strconv.ParseFloat(record[idx], 64); err == nil {
				textQuality = &v
			}
		}

		s := LabeledSession{
			RespondentID: record[colIndex["respondent_id"]],
			SurveyID:     record[colIndex["survey_id"]],
			IPAddress:    record[colIndex["ip"]],
			DurationSecs: durationSecs,
			Behavioral:   behavioral,
			TextQuality:  textQuality,
			IsBot:        isBot,
		}
		if idx, ok := colIndex["response_text"]; ok {
			s.ResponseText = record[idx]
		}

		sessions = append(sessions, s)

		if limit > 0 && len(sessions) >= limit {
			break
		}
	}

	return sessions, nil
}

func runBenchmark(sessions []LabeledSession, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabeledSession, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for s := range work {
				start := time.Now()
				result, status, err := analyzeSession(client, baseURL, tenantID, s)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					if status == http.StatusUnprocessableEntity {
						atomic.AddInt64(&metrics.TotalNoSignal, 1)
					} else {
						atomic.AddInt64(&metrics.TotalErrors, 1)
					}
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", s.RespondentID, err)
					}
					continue
				}

				if s.IsBot {
					atomic.AddInt64(&metrics.TotalBots, 1)
				} else {
					atomic.AddInt64(&metrics.TotalHumans, 1)
				}

				predicted := result.Classification == "BOT"
				actual := s.IsBot

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					mark := "ok "
					if predicted != actual {
						mark = "BAD"
					}
					fmt.Printf("%s %-12s | Bot: %-5v | Kestrel: %-5s (%.2f) | Risk: %s\n",
						mark,
						s.RespondentID,
						s.IsBot,
						result.Classification,
						result.Confidence,
						result.RiskLevel,
					)
				}
			}
		}()
	}

	for _, s := range sessions {
		work <- s
	}
	close(work)

	wg.Wait()

	return metrics
}

func analyzeSession(client *http.Client, baseURL, tenantID string, s LabeledSession) (*AnalyzeResponse, int, error) {
	now := time.Now().UTC()
	req := AnalyzeRequest{
		SurveyID:         s.SurveyID,
		RespondentID:     s.RespondentID,
		IPAddress:        s.IPAddress,
		StartedAt:        now.Add(-time.Duration(s.DurationSecs) * time.Second),
		CompletedAt:      now,
		BehavioralScores: s.Behavioral,
		TextQualityScore: s.TextQuality,
	}
	if s.ResponseText != "" {
		req.Responses = []Response{{
			QuestionID:  "q1",
			Text:        s.ResponseText,
			SubmittedAt: now,
		}}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, 0, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, err
	}

	return &result, resp.StatusCode, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Bots:       %d\n", m.TotalBots)
	fmt.Printf("   Total Humans:     %d\n", m.TotalHumans)
	fmt.Printf("   No Signals:       %d\n", m.TotalNoSignal)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    BOT         HUMAN")
	fmt.Printf("   Actual Bot   | %8d | %8d |  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("        Human   | %8d | %8d |  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of bot calls, how many were actual bots)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of bots, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\nDETECTION ANALYSIS\n")
	if m.TotalBots > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalBots) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalBots) * 100
		fmt.Printf("   Bots Detected:     %d / %d (%.2f%%)\n", m.TruePositives, m.TotalBots, detectionRate)
		fmt.Printf("   Bots Missed:       %d / %d (%.2f%%)\n", m.FalseNegatives, m.TotalBots, missRate)
	}
	if m.TotalHumans > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalHumans) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalHumans, falseAlarmRate)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		sps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f sessions/sec\n", sps)
	}

	fmt.Printf("\nINTERPRETATION\n")
	switch {
	case recall >= 0.9:
		fmt.Println("   Excellent recall - catching most bots")
	case recall >= 0.7:
		fmt.Println("   Good recall - but missing some bots")
	case recall >= 0.5:
		fmt.Println("   Moderate recall - significant bot traffic being missed")
	default:
		fmt.Println("   Poor recall - most bots are being missed")
	}

	if precision >= 0.5 {
		fmt.Println("   Good precision - bot calls are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   Low precision - many false alarms")
	} else {
		fmt.Println("   Very low precision - mostly false alarms")
	}

	fmt.Println()
}
