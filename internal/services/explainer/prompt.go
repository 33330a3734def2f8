package explainer

import (
	"fmt"
	"strings"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/service"
)

func buildPrompt(in service.ExplainInput) string {
	r := in.Rules
	var b strings.Builder
	b.WriteString("You are a crypto market analyst assistant. Without giving any definitive buy or sell order,\n")
	b.WriteString("write a six-line summary of the data below using this template:\n\n")
	b.WriteString("1) Overall: {decision} ({confidence}/100)\n2) Trend: 4H ... | 1H ...\n")
	b.WriteString("3) Signals: which indicator said what on which timeframe (short)\n")
	b.WriteString("4) Scenario A: if price rises ...\n5) Scenario B: if price falls ...\n")
	b.WriteString("6) Risk: volatility, stops required, no definitive buy/sell\n\nData:\n")

	fmt.Fprintf(&b, "- Symbol: %s\n", r.Symbol)
	fmt.Fprintf(&b, "- Decision: %s | Bias: %s | Confidence: %d/100 | Score: %.4f\n", r.Decision, r.Bias, r.Confidence, r.Score)
	veto := "none"
	if r.VetoApplied {
		veto = r.VetoReason
	}
	fmt.Fprintf(&b, "- Threshold: %g | Veto: %t (%s)\n", r.Threshold, r.VetoApplied, veto)
	reasons := "none"
	if len(r.Reasons) > 0 {
		reasons = strings.Join(r.Reasons, "; ")
	}
	fmt.Fprintf(&b, "- Reasons: %s\n- Market:\n", reasons)

	byTF := make(map[models.Timeframe][]string)
	for _, u := range r.SignalsUsed {
		byTF[u.TF] = append(byTF[u.TF], fmt.Sprintf("%s=%s", u.Indicator, u.Signal))
	}
	for _, tf := range models.Timeframes {
		if in.Market == nil {
			break
		}
		ms, ok := in.Market.Frames[tf]
		if !ok {
			continue
		}
		sigs := "none"
		if s := byTF[tf]; len(s) > 0 {
			sigs = strings.Join(s, ", ")
		}
		fmt.Fprintf(&b, "  %s: price=%g, slope=%+.2f, green/red=%d/%d, signals=[%s]\n",
			tf, ms.LastPrice, ms.Slope, ms.GreenCandles, ms.RedCandles, sigs)
	}
	b.WriteString("\nWrite the six-line summary. Do not say \"definitely buy\" or \"definitely sell\".")
	return b.String()
}
