package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var analyzePreferred string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <ticker> [ticker...]",
	Short: "Run an ad-hoc analysis for one or more tickers",
	Long: `Fan the given tickers out to parallel analyses under one shared
deadline. Each analysis acquires its provider through the budget-governed
cascade; results come back positionally aligned with the tickers.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&analyzePreferred, "preferred", "p", "", "Provider to try first")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	payload, err := json.Marshal(AnalyzeRequest{
		Tickers:   args,
		Preferred: analyzePreferred,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/api/v1/analyze", serverURL), "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error: %s", string(body))
	}

	var result AnalyzeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	fmt.Printf("Run %s: %d succeeded, %d failed, %d timed out (%dms)\n\n",
		result.RunID, result.Succeeded, result.Failed, result.TimedOut, result.DurationMS)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TICKER\tPROVIDER\tCOST\tSENTIMENT\tRESULT")
	for _, r := range result.Results {
		switch {
		case r.TimedOut:
			fmt.Fprintf(w, "%s\t-\t-\t-\ttimed out\n", r.Ticker)
		case r.Error != "":
			fmt.Fprintf(w, "%s\t-\t-\t-\t%s\n", r.Ticker, r.Error)
		case r.Analysis != nil:
			sentiment := r.Analysis.Sentiment
			if r.Analysis.SentimentSkipped {
				sentiment = "(skipped)"
			}
			fmt.Fprintf(w, "%s\t%s/%s\t$%.4f\t%s\tok\n",
				r.Ticker, r.Analysis.Provider, r.Analysis.Model, r.Analysis.Cost, sentiment)
		}
	}
	w.Flush()
	return nil
}
