package explainer

import (
	"context"
	"fmt"
	"strings"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/service"
)

// MaxLines caps every stored explanation.
const MaxLines = 6

// Template renders a fixed six-line explanation without any network call.
type Template struct{}

func (Template) Provider() string { return "template" }

func (Template) Explain(_ context.Context, in service.ExplainInput) (string, error) {
	return render(in), nil
}

func render(in service.ExplainInput) string {
	r := in.Rules
	veto := ""
	if r.VetoApplied {
		veto = fmt.Sprintf(" (veto: %s)", r.VetoReason)
	}

	slope4h, slope1h := frameSlope(in.Market, models.TF4h), frameSlope(in.Market, models.TF1h)
	lines := []string{
		fmt.Sprintf("1) Overall: %s (%d/100)%s", r.Decision, r.Confidence, veto),
		fmt.Sprintf("2) Trend: 4H %s (slope=%+.2f) | 1H %s (slope=%+.2f)", direction(slope4h), slope4h, direction(slope1h), slope1h),
		"3) Signals: " + signalSummary(r.SignalsUsed),
		fmt.Sprintf("4) Scenario A: if strength continues, price follows the current bias (%s).", r.Bias),
		"5) Scenario B: a reversal against the bias can flip it; plan a stop or hedge.",
		fmt.Sprintf("6) Risk: score=%.3f, threshold=%g. Not a buy or sell instruction; confirm with your own analysis.", r.Score, r.Threshold),
	}
	return strings.Join(lines, "\n")
}

func frameSlope(mc *models.MarketContext, tf models.Timeframe) float64 {
	if mc == nil {
		return 0
	}
	return mc.Frames[tf].Slope
}

func direction(slope float64) string {
	if slope > 0 {
		return "up"
	}
	return "down"
}

func signalSummary(used []models.UsedSignal) string {
	if len(used) == 0 {
		return "no signals"
	}
	parts := make([]string, 0, len(used))
	for _, u := range used {
		parts = append(parts, fmt.Sprintf("%s@%s=%s", u.Indicator, u.TF, u.Signal))
	}
	return strings.Join(parts, ", ")
}

// Lines splits an explanation into at most MaxLines non-empty lines.
func Lines(text string) []string {
	var out []string
	for _, l := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		out = append(out, l)
		if len(out) == MaxLines {
			break
		}
	}
	return out
}
