package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/nhle/guest-services/internal/badge"
	"github.com/nhle/guest-services/internal/feed"
	"github.com/nhle/guest-services/internal/model"
)

type feedOutput struct {
	Items    []model.NotificationItem `json:"items"`
	Failures map[string]string        `json:"failures,omitempty"`
}

func toFeedOutput(f feed.Feed) feedOutput {
	out := feedOutput{Items: f.Items}
	if out.Items == nil {
		out.Items = []model.NotificationItem{}
	}
	for typ, err := range f.Failures {
		if out.Failures == nil {
			out.Failures = make(map[string]string)
		}
		out.Failures[string(typ)] = err.Error()
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printFeed writes one line per item, newest first, followed by any
// sources that could not be reached.
func printFeed(w io.Writer, f feed.Feed) error {
	if len(f.Items) == 0 {
		fmt.Fprintln(w, "No notifications.")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, it := range f.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			it.Time.Local().Format(time.DateTime),
			it.SectionKey,
			it.Key(),
			it.Status,
			it.Title,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	failed := make([]string, 0, len(f.Failures))
	for typ, err := range f.Failures {
		failed = append(failed, fmt.Sprintf("%s: %v", typ, err))
	}
	sort.Strings(failed)
	for _, line := range failed {
		fmt.Fprintf(w, "warning: %s\n", line)
	}
	return nil
}

// printCounts writes the unread badge of every section and the total.
func printCounts(w io.Writer, c badge.Counts, display func(int) string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, section := range c.Sorted() {
		fmt.Fprintf(tw, "%s\t%s\n", section, orZero(display(c.Sections[section])))
	}
	fmt.Fprintf(tw, "total\t%s\n", orZero(display(c.Total)))
	return tw.Flush()
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
