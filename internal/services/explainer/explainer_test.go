package explainer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInput() service.ExplainInput {
	return service.ExplainInput{
		Symbol: "ETHUSDT",
		Rules: models.LatestRules{
			RulesResult: models.RulesResult{
				EvaluationID: "e1", Symbol: "ETHUSDT", Score: 0.4, Threshold: 0.35,
				Bias: models.BiasLong, Decision: models.DecisionWatch, Confidence: 57,
				Reasons: []string{"score=0.4000 threshold=0.3500 bias=LONG"},
				VetoApplied: true, VetoReason: "4h net SELL: LONG_SETUP vetoed",
			},
			SignalsUsed: []models.UsedSignal{
				{Indicator: "AdaptiveTrendFlow", TF: models.TF1h, Signal: models.SignalBuy},
				{Indicator: "AdaptiveTrendFlow", TF: models.TF4h, Signal: models.SignalSell},
			},
		},
		Market: &models.MarketContext{Frames: map[models.Timeframe]models.MarketSummary{
			models.TF4h: {TF: models.TF4h, Slope: -12.5, LastPrice: 2000},
			models.TF1h: {TF: models.TF1h, Slope: 3.25, LastPrice: 2000},
		}},
	}
}

func TestTemplateRendersSixLines(t *testing.T) {
	text, err := Template{}.Explain(context.Background(), sampleInput())
	require.NoError(t, err)

	lines := Lines(text)
	require.Len(t, lines, 6)
	assert.Equal(t, "1) Overall: WATCH (57/100) (veto: 4h net SELL: LONG_SETUP vetoed)", lines[0])
	assert.Equal(t, "2) Trend: 4H down (slope=-12.50) | 1H up (slope=+3.25)", lines[1])
	assert.Equal(t, "3) Signals: AdaptiveTrendFlow@1h=BUY, AdaptiveTrendFlow@4h=SELL", lines[2])
	assert.Contains(t, lines[5], "score=0.400, threshold=0.35")
}

func TestTemplateWithoutMarket(t *testing.T) {
	in := sampleInput()
	in.Market = nil
	in.Rules.SignalsUsed = nil
	text, _ := Template{}.Explain(context.Background(), in)
	assert.Contains(t, text, "4H down (slope=+0.00)")
	assert.Contains(t, text, "3) Signals: no signals")
}

func TestLinesCapsAndTrims(t *testing.T) {
	got := Lines("a\r\n\n b \nc\nd\ne\nf\ng\n")
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, got)
}

type countingMetrics struct{ fallbacks atomic.Int32 }

func (m *countingMetrics) RecordAlert(string) {}

func (m *countingMetrics) RecordRejection(string) {}

func (m *countingMetrics) RecordEvaluation(string) {}

func (m *countingMetrics) RecordLock(string) {}

func (m *countingMetrics) RecordStoreError(string) {}

func (m *countingMetrics) RecordTick(string, float64) {}

func (m *countingMetrics) RecordExplanation(_, outcome string) {
	if outcome == "fallback" {
		m.fallbacks.Add(1)
	}
}

func TestOpenAISendsChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		assert.Equal(t, 0.3, req.Temperature)
		assert.Equal(t, 500, req.MaxTokens)
		assert.Contains(t, req.Messages[0].Content, "- Symbol: ETHUSDT")
		assert.Contains(t, req.Messages[0].Content, "4h: price=2000, slope=-12.50, green/red=0/0, signals=[AdaptiveTrendFlow=SELL]")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  line one\nline two  "}}]}`))
	}))
	defer srv.Close()

	ex := New("openai", OpenAIConfig{APIKey: "sk-test", Model: "gpt-test", BaseURL: srv.URL + "/v1/"}, nil, nil)
	assert.Equal(t, "openai", ex.Provider())
	text, err := ex.Explain(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", text)
}

func TestOpenAIRetriesThenFallsBack(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := &countingMetrics{}
	ex := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, MaxRetries: 2, RetryInterval: time.Millisecond}, nil, m)
	text, err := ex.Explain(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, strings.HasPrefix(text, "1) Overall: WATCH"))
	assert.Equal(t, int32(1), m.fallbacks.Load())
}

func TestOpenAIClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	ex := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, MaxRetries: 3, RetryInterval: time.Millisecond}, nil, nil)
	_, err := ex.Explain(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewDefaultsToTemplate(t *testing.T) {
	assert.Equal(t, "template", New("openai", OpenAIConfig{}, nil, nil).Provider())
	assert.Equal(t, "template", New("dummy", OpenAIConfig{APIKey: "k"}, nil, nil).Provider())
}
