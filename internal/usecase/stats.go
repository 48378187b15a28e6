package usecase

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"maps"
	"math"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
)

const unknownQuality = "inconnue"

// PageStat counts the events of one page.
type PageStat struct {
	Page      string          `json:"page"`
	Count     int             `json:"count"`
	Deletions int             `json:"deletions"`
	Actions   []domain.Action `json:"actions"`
	LastEvent time.Time       `json:"last_event"`
}

// Report aggregates one period of the event log.
type Report struct {
	Period         string         `json:"period"`
	Total          int            `json:"total"`
	UniquePages    int            `json:"unique_pages"`
	Deletions      int            `json:"deletions"`
	DeletionRate   float64        `json:"deletion_rate"`
	Actions        map[string]int `json:"actions"`
	Quality        map[string]int `json:"quality"`
	Problems       map[string]int `json:"problems"`
	Scripts        map[string]int `json:"scripts"`
	Runs           int            `json:"runs"`
	MeanConfidence float64        `json:"mean_confidence"`
	TopPages       []PageStat     `json:"top_pages"`
}

// Aggregate computes the report of a set of records. The mean confidence
// ignores zero values; top holds at most limit pages, busiest first.
func Aggregate(period string, records []domain.EventRecord, limit int) Report {
	report := Report{
		Period:   period,
		Total:    len(records),
		Actions:  map[string]int{},
		Quality:  map[string]int{},
		Problems: map[string]int{},
		Scripts:  map[string]int{},
	}

	pages := map[string]*PageStat{}
	runs := map[string]bool{}
	var confSum, confCount int
	for _, rec := range records {
		stat, ok := pages[rec.Page]
		if !ok {
			stat = &PageStat{Page: rec.Page}
			pages[rec.Page] = stat
		}
		stat.Count++
		if rec.Timestamp.After(stat.LastEvent) {
			stat.LastEvent = rec.Timestamp
		}

		if rec.Deletion {
			report.Deletions++
			stat.Deletions++
		}
		for _, a := range rec.Actions {
			report.Actions[string(a)]++
			if !slices.Contains(stat.Actions, a) {
				stat.Actions = append(stat.Actions, a)
			}
		}
		quality := string(rec.Quality)
		if quality == "" {
			quality = unknownQuality
		}
		report.Quality[quality]++
		for _, p := range rec.Problems {
			report.Problems[p]++
		}
		report.Scripts[rec.Script]++
		if rec.RunID != "" {
			runs[rec.RunID] = true
		}
		if rec.Confidence > 0 {
			confSum += rec.Confidence
			confCount++
		}
	}

	report.UniquePages = len(pages)
	report.Runs = len(runs)
	if report.Total > 0 {
		report.DeletionRate = round2(float64(report.Deletions) * 100 / float64(report.Total))
	}
	if confCount > 0 {
		report.MeanConfidence = round2(float64(confSum) / float64(confCount))
	}

	top := make([]PageStat, 0, len(pages))
	for _, stat := range pages {
		top = append(top, *stat)
	}
	slices.SortFunc(top, func(a, b PageStat) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Page, b.Page)
	})
	if limit > 0 && len(top) > limit {
		top = top[:limit]
	}
	report.TopPages = top
	return report
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Stats reads the event log for reports.
type Stats struct {
	events ports.EventLog
}

// NewStats builds the reporting use case.
func NewStats(events ports.EventLog) *Stats {
	return &Stats{events: events}
}

// Report loads and aggregates one period (YYYY-MM).
func (s *Stats) Report(ctx context.Context, period string, limit int) (Report, error) {
	if _, err := time.Parse("2006-01", period); err != nil {
		return Report{}, fmt.Errorf("invalid period %q: want YYYY-MM", period)
	}
	records, err := s.events.Records(ctx, period)
	if err != nil {
		return Report{}, fmt.Errorf("load records: %w", err)
	}
	return Aggregate(period, records, limit), nil
}

// Render prints a report as aligned text.
func Render(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Période\t%s\n", r.Period)
	fmt.Fprintf(tw, "Événements\t%d\n", r.Total)
	fmt.Fprintf(tw, "Pages uniques\t%d\n", r.UniquePages)
	fmt.Fprintf(tw, "Passes\t%d\n", r.Runs)
	fmt.Fprintf(tw, "SI\t%d (%.2f %%)\n", r.Deletions, r.DeletionRate)
	fmt.Fprintf(tw, "Confiance moyenne\t%.2f\n", r.MeanConfidence)

	section := func(title string, counts map[string]int) {
		if len(counts) == 0 {
			return
		}
		fmt.Fprintf(tw, "\n%s\t\n", title)
		keys := slices.SortedFunc(maps.Keys(counts), func(a, b string) int {
			if c := cmp.Compare(counts[b], counts[a]); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})
		for _, k := range keys {
			fmt.Fprintf(tw, "  %s\t%d\n", k, counts[k])
		}
	}
	section("Actions", r.Actions)
	section("Qualité", r.Quality)
	section("Problèmes", r.Problems)

	if len(r.TopPages) > 0 {
		fmt.Fprintf(tw, "\nPages les plus traitées\t\n")
		for _, p := range r.TopPages {
			fmt.Fprintf(tw, "  %s\t%d\t%d SI\n", p.Page, p.Count, p.Deletions)
		}
	}
	return tw.Flush()
}
