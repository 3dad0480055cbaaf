package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "View today's scheduled job statuses",
	RunE:  runJobs,
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Trigger a scheduled job now",
	Long: `Trigger a job outside its scheduled slot. Prerequisite and
already-ran checks still apply; a skipped job is reported, not an error.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobsRun,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsRunCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	resp, err := http.Get(fmt.Sprintf("%s/api/v1/jobs/today", serverURL))
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error: %s", string(body))
	}

	var result JobList
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	if len(result.Jobs) == 0 {
		fmt.Println("No jobs recorded today.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tSTATUS\tSTARTED\tFINISHED\tERROR")
	for _, j := range result.Jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			j.Job, j.Status, j.StartedAt, j.FinishedAt, j.Error)
	}
	w.Flush()
	return nil
}

func runJobsRun(cmd *cobra.Command, args []string) error {
	resp, err := http.Post(fmt.Sprintf("%s/api/v1/jobs/%s/run", serverURL, args[0]), "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("unknown job: %s", args[0])
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error: %s", string(body))
	}

	var outcome JobOutcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(outcome)
	}

	if !outcome.Ran {
		fmt.Printf("Job %s skipped: %s\n", outcome.Job, outcome.Skipped)
		return nil
	}

	fmt.Printf("Job %s finished with status %s\n", outcome.Job, outcome.Status)
	if outcome.Error != "" {
		fmt.Printf("Error: %s\n", outcome.Error)
	}
	return nil
}
