package main

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"commitstats/internal/stats"
)

// renderText prints a report as plain text, one statistic per line.
func renderText(w io.Writer, report stats.Report) error {
	lines := []string{
		fmt.Sprintf("Start: %s", report.Start.Format(time.DateTime)),
		fmt.Sprintf("End: %s", report.End.Format(time.DateTime)),
		fmt.Sprintf("Duration: %s", clockSpan(report.Span)),
		"",
		fmt.Sprintf("n: %d", report.Count),
		"",
	}
	for _, pv := range report.Percentiles {
		lines = append(lines, fmt.Sprintf("%2d%% commit duration: %s", int(math.Round(pv.Rank*100)), seconds(pv.Seconds)))
	}
	lines = append(lines,
		"",
		fmt.Sprintf("Min commit duration: %s", seconds(report.Min)),
		fmt.Sprintf("Mean commit duration: %s", seconds(report.Mean)),
		fmt.Sprintf("Max commit duration: %s", seconds(report.Max)),
	)

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// clockSpan formats d as [N day(s), ]H:MM:SS[.ffffff].
func clockSpan(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	const day = 24 * time.Hour
	days := d / day
	d -= days * day
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	secs := d / time.Second
	micros := (d - secs*time.Second) / time.Microsecond

	out := fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	if micros != 0 {
		out += fmt.Sprintf(".%06d", micros)
	}
	switch {
	case days == 1:
		out = "1 day, " + out
	case days > 1:
		out = fmt.Sprintf("%d days, %s", days, out)
	}
	return sign + out
}
