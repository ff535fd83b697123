package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/odyssey-erp/caixa/internal/consol"
	"github.com/odyssey-erp/caixa/internal/ledger"
	"github.com/odyssey-erp/caixa/internal/units"
)

// SummaryOptions defines the flags of the summary command.
type SummaryOptions struct {
	APIBase    string
	Date       string
	Units      []int64
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
	HTTPClient *http.Client
}

// SummaryCommand fetches the consolidated view of a day from the API and
// prints it. It returns the process exit code.
func SummaryCommand(ctx context.Context, opts SummaryOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if _, err := ledger.ParseDay(opts.Date); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "summary: invalid date %q (expected YYYY-MM-DD)\n", opts.Date)
		return 1
	}
	view, err := fetchConsolidation(ctx, opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "summary: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(view); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "summary: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	renderSummaryHuman(opts.Stdout, view)
	return 0
}

func fetchConsolidation(ctx context.Context, opts SummaryOptions) (consol.ConsolidatedSummary, error) {
	var view consol.ConsolidatedSummary
	endpoint := strings.TrimRight(opts.APIBase, "/") + "/api/v1/consolidation/" + url.PathEscape(strings.TrimSpace(opts.Date))
	if len(opts.Units) > 0 {
		ids := make([]string, len(opts.Units))
		for i, id := range opts.Units {
			ids[i] = strconv.FormatInt(id, 10)
		}
		endpoint += "?units=" + url.QueryEscape(strings.Join(ids, ","))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return view, err
	}
	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return view, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var problem struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&problem)
		return view, fmt.Errorf("api returned %d %s %s", resp.StatusCode, problem.Title, problem.Detail)
	}
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return view, fmt.Errorf("decode response: %w", err)
	}
	return view, nil
}

func renderSummaryHuman(out io.Writer, view consol.ConsolidatedSummary) {
	_, _ = fmt.Fprintf(out, "Consolidated cash for %s\n", view.Date.Format(ledger.DateLayout))
	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(tw, "unit\tgross\tcollected\tdeferred\tinflow\toutflow\tclosing\t")
	for _, row := range view.Units {
		writeSummaryRow(tw, row.UnitName, row.Summary)
	}
	writeSummaryRow(tw, units.AllUnitsLabel, view.Totals)
	_ = tw.Flush()
}

func writeSummaryRow(w io.Writer, label string, s ledger.Summary) {
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
		label,
		ledger.FormatCents(s.GrossRevenue),
		ledger.FormatCents(s.CollectedCash),
		ledger.FormatCents(s.DeferredRevenue),
		ledger.FormatCents(s.TotalInflow),
		ledger.FormatCents(s.TotalOutflow),
		ledger.FormatCents(s.ClosingBalance),
	)
}
