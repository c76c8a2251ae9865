package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/harishsairam-ops/DDoS-Hackathon/internal/domain"
)

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

type summaryOptions struct {
	Limit int
	// Width truncates event lines; zero disables truncation.
	Width int
}

func renderSummary(w io.Writer, snap domain.Snapshot, series domain.Series, opts summaryOptions) {
	fmt.Fprintf(w, "SECURITY %s\n", snap.SecurityLevel())
	fmt.Fprintf(w, "requests %d  blocked %d  bots %d  ml %.2f\n",
		snap.TotalRequests, snap.BlockedCount, snap.DetectedBotCount, snap.MeanMLScore())
	fmt.Fprintf(w, "rate %s  peak %d  avg %.1f  freq %s\n", sparkline(series), series.Peak, series.Mean, series.WidthLabel)

	if len(snap.BlockedAddresses) > 0 {
		fmt.Fprintf(w, "blocklist %s\n", strings.Join(snap.BlockedAddresses, ", "))
	}
	count := len(snap.Logs)
	if opts.Limit >= 0 && opts.Limit < count {
		count = opts.Limit
	}
	if count == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, rec := range snap.Logs[:count] {
		line := eventLine(rec, snap.IsBlocked(rec.OriginAddress))
		if opts.Width > 0 && len([]rune(line)) > opts.Width {
			line = string([]rune(line)[:opts.Width])
		}
		fmt.Fprintln(w, line)
	}
}

func eventLine(rec domain.EventRecord, blocked bool) string {
	verdict := "ALLOW"
	if !rec.Allowed() {
		verdict = "DENY"
	}
	flag := ""
	if blocked {
		flag = " [blocked]"
	}
	return fmt.Sprintf("%s  %-6s %-15s %-5s %.2f %s %s%s",
		rec.Time().Local().Format("15:04:05"), rec.ThreatLevel, rec.OriginAddress, verdict,
		rec.MLScore, rec.Method, rec.Path, flag)
}

// sparkline scales bucket counts against the series peak.
func sparkline(series domain.Series) string {
	var b strings.Builder
	top := len(sparkRunes) - 1
	for _, bucket := range series.Buckets {
		idx := 0
		if series.Peak > 0 {
			idx = bucket.Count * top / series.Peak
		}
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}
