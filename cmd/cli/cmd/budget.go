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

var budgetCmd = &cobra.Command{
	Use:   "budget [service]",
	Short: "View budget usage and headroom",
	Long:  `View today's calls, month-to-date cost, and remaining headroom per service.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBudget,
}

func init() {
	rootCmd.AddCommand(budgetCmd)
}

func runBudget(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return runBudgetService(args[0])
	}

	resp, err := http.Get(fmt.Sprintf("%s/api/v1/budget", serverURL))
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error: %s", string(body))
	}

	var result BudgetList
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	printBudgets(result.Budgets)
	return nil
}

func runBudgetService(service string) error {
	resp, err := http.Get(fmt.Sprintf("%s/api/v1/budget/%s", serverURL, service))
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("unknown service: %s", service)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error: %s", string(body))
	}

	var summary BudgetSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summary)
	}

	printBudgets([]BudgetSummary{summary})
	return nil
}

func printBudgets(budgets []BudgetSummary) {
	if len(budgets) == 0 {
		fmt.Println("No budgets configured.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tDAY\tCALLS\tCALL LIMIT\tDAILY COST\tMONTH COST\tMONTH BUDGET\tREMAINING")
	for _, b := range budgets {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t$%.4f\t$%.2f\t$%.2f\t$%.2f\n",
			b.Service, b.Day, b.DailyCalls, b.DailyCallLimit,
			b.DailyCost, b.MonthlyCost, b.MonthlyBudget, b.BudgetRemaining)
	}
	w.Flush()
}
