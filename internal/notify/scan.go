package notify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/alanyoungcy/ftarb/internal/domain"
)

// ScanMessage builds the opportunity alert for a scan result: one field per
// flagged market listing its outcome comparisons.
func ScanMessage(result domain.ScanResult) Message {
	msg := Message{
		Title: fmt.Sprintf("42.space vs Polymarket: %d opportunit%s", len(result.Opportunities), plural(len(result.Opportunities))),
		Description: fmt.Sprintf("Scanned %d liquid of %d markets (%s), threshold %.1f%%.",
			result.Summary.LiquidMarkets, result.Summary.TotalMarkets, result.Method, result.Threshold),
		Timestamp: result.Timestamp,
	}
	for _, o := range result.Opportunities {
		msg.Fields = append(msg.Fields, Field{Name: o.Market.DisplayTitle(), Value: opportunityValue(o)})
	}
	return msg
}

// opportunityValue lists the comparisons of o, largest first as scanned,
// followed by the Polymarket link. Lines that would push the value past
// maxFieldValue characters are replaced by a count so the link survives.
func opportunityValue(o domain.Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Max diff: %.1f%%\n", o.MaxDiff)

	// room for the link and a "...and N more" line
	budget := maxFieldValue - utf8.RuneCountInString(o.PolyURL) - 24
	for i, c := range o.Comparisons {
		line := fmt.Sprintf("%s: 42 %s vs Poly %s (%s)\n", c.Outcome, c.FtProb, c.PolyProb, c.Diff)
		if utf8.RuneCountInString(b.String())+utf8.RuneCountInString(line) > budget {
			fmt.Fprintf(&b, "...and %d more\n", len(o.Comparisons)-i)
			break
		}
		b.WriteString(line)
	}
	b.WriteString(o.PolyURL)
	return clip(b.String(), maxFieldValue)
}

// ErrorMessage builds an alert for a failed run.
func ErrorMessage(stage string, err error) Message {
	return Message{
		Title:       "ftarb " + stage + " failed",
		Description: err.Error(),
	}
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
