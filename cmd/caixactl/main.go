package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/odyssey-erp/caixa/cmd/caixactl/cli"
)

const usage = `usage: caixactl <command> [flags]

commands:
  trigger <job>   enqueue register:audit-open, consol:warmup or idempotency:cleanup
  queue           show default queue statistics
  scheduled       list scheduled tasks
  summary         print the consolidated cash view of a day
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	redisAddr := envOr("REDIS_ADDR", "127.0.0.1:6379")
	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("trigger", flag.ContinueOnError)
		fs.SetOutput(stderr)
		date := fs.String("date", "", "business date YYYY-MM-DD, empty for today")
		rawUnits := fs.String("units", "", "comma separated unit ids")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if fs.NArg() != 1 {
			_, _ = fmt.Fprintln(stderr, "trigger: job name required")
			return 2
		}
		unitIDs, err := parseUnits(*rawUnits)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "trigger: %v\n", err)
			return 2
		}
		jobsCLI := cli.NewJobsCLI(redisAddr)
		defer jobsCLI.Close()
		info, err := jobsCLI.Trigger(ctx, fs.Arg(0), *date, unitIDs)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case "queue":
		jobsCLI := cli.NewJobsCLI(redisAddr)
		defer jobsCLI.Close()
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "queue: %v\n", err)
			return 1
		}
		_ = json.NewEncoder(stdout).Encode(stats)
		return 0
	case "scheduled":
		fs := flag.NewFlagSet("scheduled", flag.ContinueOnError)
		fs.SetOutput(stderr)
		size := fs.Int("size", 10, "page size")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		jobsCLI := cli.NewJobsCLI(redisAddr)
		defer jobsCLI.Close()
		tasks, err := jobsCLI.ListScheduled(ctx, *size)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "scheduled: %v\n", err)
			return 1
		}
		for _, t := range tasks {
			_, _ = fmt.Fprintf(stdout, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		return 0
	case "summary":
		fs := flag.NewFlagSet("summary", flag.ContinueOnError)
		fs.SetOutput(stderr)
		api := fs.String("api", envOr("CAIXA_API", "http://127.0.0.1:8080"), "API base URL")
		date := fs.String("date", "", "business date YYYY-MM-DD")
		rawUnits := fs.String("units", "", "comma separated unit ids, empty for all active units")
		asJSON := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		unitIDs, err := parseUnits(*rawUnits)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "summary: %v\n", err)
			return 2
		}
		return cli.SummaryCommand(ctx, cli.SummaryOptions{
			APIBase:    *api,
			Date:       *date,
			Units:      unitIDs,
			JSONOutput: *asJSON,
			Stdout:     stdout,
			Stderr:     stderr,
		})
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
}

func parseUnits(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid unit id %q", p)
		}
		out = append(out, id)
	}
	return out, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
