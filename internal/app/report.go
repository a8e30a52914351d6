package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"horse.fit/digest/internal/cli"
	"horse.fit/digest/internal/config"
	"horse.fit/digest/internal/db"
)

type reportGroupOutput struct {
	ReportGroupID int64           `json:"report_group_id"`
	StoryCount    int             `json:"story_count"`
	Stories       []db.GroupStory `json:"stories"`
}

type reportOutput struct {
	Date      string              `json:"date"`
	ReportID  int64               `json:"report_id"`
	Tolerance float64             `json:"tolerance"`
	MinPoints int                 `json:"min_points"`
	Score     float64             `json:"score"`
	Rows      int                 `json:"rows"`
	Dims      int                 `json:"dims"`
	CreatedAt string              `json:"created_at"`
	Groups    []reportGroupOutput `json:"groups"`
}

func runReport(args []string) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	date := fs.String("date", defaultUTCDayString(), "Target date in YYYY-MM-DD (UTC)")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	lang := fs.String("lang", "", "Display language (defaults to DISPLAY_LANGUAGE)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "report does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	targetDay, err := parseUTCDate(*date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --date: %v\n", err)
		return 2
	}
	dayStart, dayEnd := utcDayBounds(targetDay)

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	displayLang := cfg.DisplayLanguage
	if *lang != "" {
		displayLang = *lang
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	report, err := pool.FindReportForDay(ctx, dayStart, dayEnd)
	if err != nil {
		if db.IsNoRows(err) {
			fmt.Fprintf(os.Stderr, "No report for %s\n", *date)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to query report: %v\n", err)
		return 1
	}

	groups, err := pool.ListReportGroups(ctx, report.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query report groups: %v\n", err)
		return 1
	}

	output := reportOutput{
		Date:      *date,
		ReportID:  report.ID.Int64(),
		Tolerance: report.Value.Tolerance,
		MinPoints: report.Value.MinPoints,
		Score:     report.Value.Score,
		Rows:      report.Value.Rows,
		Dims:      report.Value.Dims,
		CreatedAt: formatUTCTimestamp(report.Value.CreatedAt),
		Groups:    make([]reportGroupOutput, 0, len(groups)),
	}

	for _, group := range groups {
		stories, err := pool.ListGroupStories(ctx, group.ID, displayLang)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to query group stories: %v\n", err)
			return 1
		}
		output.Groups = append(output.Groups, reportGroupOutput{
			ReportGroupID: group.ID.Int64(),
			StoryCount:    len(stories),
			Stories:       stories,
		})
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(output); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to print report: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Printf("Report %d for %s: %d groups, score %.3f over %d stories\n\n",
		output.ReportID, output.Date, len(output.Groups), output.Score, output.Rows)

	rows := make([][]string, 0, 16)
	for _, group := range output.Groups {
		for _, story := range group.Stories {
			marker := ""
			if story.Representative {
				marker = "*"
			}
			rows = append(rows, []string{
				strconv.FormatInt(group.ReportGroupID, 10),
				marker,
				truncateForTable(story.Title, 70),
				truncateForTable(story.Link, 60),
			})
		}
	}
	if err := writeTable([]string{"GROUP", "REP", "TITLE", "LINK"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to print table: %v\n", err)
		return 1
	}
	return 0
}
