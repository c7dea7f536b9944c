package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// fakeStore collects provider writes in memory.
type fakeStore struct {
	periods []models.FinancialPeriod
	macro   []models.MacroObservation
	signals []models.SocialSignal
	filings []models.EntityFiling
	sources []models.Source
}

func (f *fakeStore) UpsertFinancialPeriod(_ context.Context, p models.FinancialPeriod) error {
	f.periods = append(f.periods, p)
	return nil
}

func (f *fakeStore) UpsertMacro(_ context.Context, m models.MacroObservation) error {
	f.macro = append(f.macro, m)
	return nil
}

func (f *fakeStore) UpsertSocialSignal(_ context.Context, sig models.SocialSignal) error {
	f.signals = append(f.signals, sig)
	return nil
}

func (f *fakeStore) UpsertFiling(_ context.Context, filing models.EntityFiling) error {
	f.filings = append(f.filings, filing)
	return nil
}

func (f *fakeStore) AddSource(_ context.Context, name, url, connectorType string) (models.Source, error) {
	s := models.Source{ID: int64(len(f.sources) + 1), Name: name, URL: url, ConnectorType: connectorType}
	f.sources = append(f.sources, s)
	return s, nil
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"123.45", models.Float(123.45)},
		{"1,234", models.Float(1234)},
		{"None", nil},
		{"", nil},
		{"-", nil},
		{".", nil},
		{"-42", models.Float(-42)},
	}
	for _, tt := range tests {
		got := parseNumber(tt.in)
		if tt.want == nil {
			assert.Nil(t, got, "parseNumber(%q)", tt.in)
		} else {
			require.NotNil(t, got, "parseNumber(%q)", tt.in)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		}
	}
}

func TestSECBuildPeriodsSplitsFormsAndMergesConcepts(t *testing.T) {
	facts := secCompanyFacts{Facts: map[string]map[string]struct {
		Units map[string][]secFactEntry `json:"units"`
	}{
		"us-gaap": {
			"Revenues": {Units: map[string][]secFactEntry{"USD": {
				{End: "2025-12-31", Val: 4e9, FY: 2025, FP: "FY", Form: "10-K"},
				{End: "2025-09-30", Val: 1e9, FY: 2025, FP: "Q3", Form: "10-Q"},
			}}},
			"NetIncomeLoss": {Units: map[string][]secFactEntry{"USD": {
				{End: "2025-09-30", Val: 2e8, FY: 2025, FP: "Q3", Form: "10-Q"},
			}}},
			"PaymentsToAcquirePropertyPlantAndEquipment": {Units: map[string][]secFactEntry{"USD": {
				{End: "2025-09-30", Val: 5e7, FY: 2025, FP: "Q3", Form: "10-Q"},
			}}},
			// Non-USD units and irrelevant forms are dropped.
			"Revenues2": {Units: map[string][]secFactEntry{"EUR": {
				{End: "2025-09-30", Val: 9e9, FY: 2025, FP: "Q3", Form: "10-Q"},
			}}},
		},
	}}

	p := NewSEC(&fakeStore{}, "test test@example.com")
	periods := p.buildPeriods(models.Entity{ID: 7, Ticker: "ACME"}, facts)
	require.Len(t, periods, 2)

	var annual, quarterly *models.FinancialPeriod
	for i := range periods {
		switch periods[i].PeriodType {
		case "annual":
			annual = &periods[i]
		case "quarterly":
			quarterly = &periods[i]
		}
	}
	require.NotNil(t, annual)
	require.NotNil(t, quarterly)

	assert.Equal(t, "2025-12-31", annual.PeriodEnd)
	assert.InDelta(t, 4e9, *annual.Income.Revenue, 1)

	assert.Equal(t, 3, quarterly.FiscalQuarter)
	assert.InDelta(t, 1e9, *quarterly.Income.Revenue, 1)
	assert.InDelta(t, 2e8, *quarterly.Income.NetIncome, 1)
	// Capex payments are stored with cash-outflow sign.
	assert.InDelta(t, -5e7, *quarterly.CashFlow.CapitalExpenditure, 1)
	require.NotNil(t, quarterly.EntityID)
	assert.EqualValues(t, 7, *quarterly.EntityID)
}

func TestSECFetchFilingsFiltersForms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"filings":{"recent":{
			"accessionNumber":["0001-25-000001","0001-25-000002","0001-25-000003"],
			"filingDate":["2025-08-01","2025-07-15","2025-07-01"],
			"form":["10-Q","SC 13G","8-K"],
			"primaryDocument":["q.htm","sch.htm","ev.htm"],
			"primaryDocDescription":["Quarterly report","Schedule 13G","Current report"]
		}}}`))
	}))
	defer srv.Close()

	st := &fakeStore{}
	p := NewSEC(st, "test test@example.com")
	p.baseURL = srv.URL

	res := p.fetchFilings(context.Background(), models.Entity{Ticker: "ACME", CIK: "0000320193"})
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.RecordsStored, "uninteresting forms must be filtered out")
	require.Len(t, st.filings, 2)
	assert.Equal(t, "10-Q", st.filings[0].FilingType)
	assert.Contains(t, st.filings[0].FilingURL, "320193")
}

func TestSECFetchFilingsRaggedArrays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"filings":{"recent":{
			"accessionNumber":["0001-25-000001","0001-25-000002","0001-25-000003"],
			"filingDate":["2025-08-01","2025-07-15"],
			"form":["10-Q"],
			"primaryDocument":[],
			"primaryDocDescription":[]
		}}}`))
	}))
	defer srv.Close()

	st := &fakeStore{}
	p := NewSEC(st, "test test@example.com")
	p.baseURL = srv.URL

	res := p.fetchFilings(context.Background(), models.Entity{Ticker: "ACME", CIK: "0000320193"})
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.RecordsStored, "only fully-populated rows are usable")
	require.Len(t, st.filings, 1)
	assert.Equal(t, "10-Q", st.filings[0].FilingType)
}

func TestSECSkipsEntitiesWithoutCIK(t *testing.T) {
	p := NewSEC(&fakeStore{}, "test test@example.com")
	out := p.FetchCompanyData(context.Background(), models.Entity{Ticker: "PRIV"})
	require.Len(t, out, 1)
	assert.False(t, out[0].Success)
}

func TestAlphaVantageDetectsThrottleNote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`))
	}))
	defer srv.Close()

	p := NewAlphaVantage(&fakeStore{}, "demo")
	p.baseURL = srv.URL

	var out avStatementResponse
	err := p.query(context.Background(), "INCOME_STATEMENT", "IBM", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestAlphaVantageStoresQuarterlyReports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("function") {
		case "INCOME_STATEMENT":
			w.Write([]byte(`{"quarterlyReports":[
				{"fiscalDateEnding":"2025-06-30","totalRevenue":"1000","netIncome":"100"},
				{"fiscalDateEnding":"2025-03-31","totalRevenue":"900","netIncome":"None"}
			]}`))
		case "OVERVIEW":
			w.Write([]byte(`{"PERatio":"24.5","AnalystTargetPrice":"210.00"}`))
		default:
			w.Write([]byte(`{"quarterlyReports":[]}`))
		}
	}))
	defer srv.Close()

	st := &fakeStore{}
	p := NewAlphaVantage(st, "demo")
	p.baseURL = srv.URL

	out := p.FetchCompanyData(context.Background(), models.Entity{Ticker: "IBM"})
	require.Len(t, out, 1)
	assert.True(t, out[0].Success)
	assert.Equal(t, 2, out[0].RecordsStored)

	var latest *models.FinancialPeriod
	for i := range st.periods {
		if st.periods[i].PeriodEnd == "2025-06-30" {
			latest = &st.periods[i]
		}
	}
	require.NotNil(t, latest)
	assert.InDelta(t, 1000, *latest.Income.Revenue, 1e-9)
	require.NotNil(t, latest.Metrics.AnalystTargetPrice, "overview ratios attach to the latest quarter")
	assert.InDelta(t, 210.0, *latest.Metrics.AnalystTargetPrice, 1e-9)
}

func TestFREDRefreshSkipsMissingObservations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("file_type"))
		w.Write([]byte(`{"observations":[
			{"date":"2026-08-21","value":"4.33"},
			{"date":"2026-08-20","value":"."}
		]}`))
	}))
	defer srv.Close()

	st := &fakeStore{}
	p := NewFRED(st, "key")
	p.baseURL = srv.URL

	res := p.RefreshSeries(context.Background())
	assert.True(t, res.Success)
	// One valid observation per series in the core set.
	assert.Equal(t, len(macroSeries), res.RecordsStored)
	for _, m := range st.macro {
		assert.InDelta(t, 4.33, m.Value, 1e-9)
	}
}

func TestKeywordSentiment(t *testing.T) {
	assert.Positive(t, keywordSentiment("Going long, this is a breakout rally"))
	assert.Negative(t, keywordSentiment("overvalued garbage, buying puts before the crash"))
	assert.Zero(t, keywordSentiment("earnings call scheduled for Thursday"))
}

func TestShortCompanyName(t *testing.T) {
	tests := map[string]string{
		"Tesla, Inc.":        "Tesla",
		"Apple Inc.":         "Apple",
		"NVIDIA Corporation": "NVIDIA",
		"Shell PLC":          "Shell",
		"Palantir":           "Palantir",
	}
	for in, want := range tests {
		assert.Equal(t, want, shortCompanyName(in), "shortCompanyName(%q)", in)
	}
}

func TestRedditAggregatesAndDeduplicates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"children":[
			{"data":{"title":"TSLA calls, going long","permalink":"/r/stocks/1","score":50,"created_utc":1755000000}},
			{"data":{"title":"TSLA calls, going long","permalink":"/r/stocks/1","score":50,"created_utc":1755000000}},
			{"data":{"title":"selling puts on the crash","permalink":"/r/stocks/2","score":10,"created_utc":1755000000}}
		]}}`))
	}))
	defer srv.Close()

	st := &fakeStore{}
	p := NewReddit(st)
	p.baseURL = srv.URL
	p.now = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }

	out := p.FetchCompanyData(context.Background(), models.Entity{Ticker: "TSLA", Name: "Tesla, Inc."})
	require.Len(t, out, 1)
	assert.True(t, out[0].Success)
	require.Len(t, st.signals, 1)

	sig := st.signals[0]
	assert.Equal(t, "reddit", sig.Platform)
	assert.Equal(t, "2026-08-24", sig.SignalDate)
	// Two unique permalinks per subreddit+query combination, deduplicated
	// across the 5 subreddits x 2 queries fan-out.
	assert.Equal(t, 2, sig.MentionCount)
	assert.GreaterOrEqual(t, sig.TopPosts[0].Score, sig.TopPosts[len(sig.TopPosts)-1].Score)
}

func TestRedditKeepsTenTopPosts(t *testing.T) {
	var children []string
	for i := 0; i < 15; i++ {
		children = append(children, fmt.Sprintf(
			`{"data":{"title":"TSLA thread %d","permalink":"/r/stocks/%d","score":%d,"created_utc":1755000000}}`,
			i, i, i*10))
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"children":[` + strings.Join(children, ",") + `]}}`))
	}))
	defer srv.Close()

	st := &fakeStore{}
	p := NewReddit(st)
	p.baseURL = srv.URL
	p.now = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }

	out := p.FetchCompanyData(context.Background(), models.Entity{Ticker: "TSLA", Name: "Tesla, Inc."})
	require.Len(t, out, 1)
	require.Len(t, st.signals, 1)

	sig := st.signals[0]
	assert.Equal(t, 15, sig.MentionCount)
	// The stored signal keeps only the ten highest-scored posts.
	require.Len(t, sig.TopPosts, 10)
	assert.Equal(t, 140, sig.TopPosts[0].Score)
	assert.Equal(t, 50, sig.TopPosts[9].Score)
}

func TestRatingSentiment(t *testing.T) {
	assert.InDelta(t, 0.8, ratingSentiment("Upgrade"), 1e-9)
	assert.InDelta(t, -0.8, ratingSentiment("Downgrade"), 1e-9)
	assert.InDelta(t, 0.1, ratingSentiment("Reiterated"), 1e-9)
	assert.Zero(t, ratingSentiment("unknown"))
}

func TestFinvizParsesRatingsTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<table class="snapshot-table2"><tr>
				<td>P/E</td><td>31.2</td><td>Target Price</td><td>245.00</td>
			</tr></table>
			<table class="js-table-ratings">
				<tr><td>Aug-20-26</td><td>Upgrade</td><td>Morgan Stanley</td><td>Equal-Weight → Overweight</td><td>$200 → $260</td></tr>
				<tr><td>Aug-18-26</td><td>Downgrade</td><td>UBS</td><td>Buy → Neutral</td><td>$250 → $210</td></tr>
			</table>
		</body></html>`))
	}))
	defer srv.Close()

	st := &fakeStore{}
	p := NewFinviz(st)
	p.baseURL = srv.URL
	p.now = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }

	out := p.FetchCompanyData(context.Background(), models.Entity{Ticker: "TSLA"})
	require.Len(t, out, 1)
	assert.True(t, out[0].Success)
	require.Len(t, st.signals, 1)

	sig := st.signals[0]
	assert.Equal(t, "finviz_analyst", sig.Platform)
	assert.Equal(t, 2, sig.MentionCount)
	assert.Zero(t, sig.AvgSentiment, "one upgrade and one downgrade cancel out")

	foundTarget := false
	for _, post := range sig.TopPosts {
		if post.Title == "Price target consensus: 245.00" {
			foundTarget = true
		}
	}
	assert.True(t, foundTarget)
}

func TestOCCOptionSide(t *testing.T) {
	assert.EqualValues(t, 'C', occOptionSide("AAPL260918C00150000"))
	assert.EqualValues(t, 'P', occOptionSide("TSLA261218P00300000"))
	assert.Zero(t, occOptionSide("short"))
}

func TestCboeComputesPutCallRatio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"options":[
			{"option":"TSLA260918C00300000","volume":100},
			{"option":"TSLA260918P00250000","volume":150},
			{"option":"TSLA260918P00200000","volume":50}
		]}}`))
	}))
	defer srv.Close()

	st := &fakeStore{}
	p := NewCboe(st)
	p.baseURL = srv.URL

	out := p.FetchCompanyData(context.Background(), models.Entity{Ticker: "TSLA"})
	require.Len(t, out, 1)
	assert.True(t, out[0].Success)
	require.Len(t, st.signals, 1)
	// ratio = 200/100 = 2.0 > 1.0 reads bearish
	assert.InDelta(t, -0.5, st.signals[0].AvgSentiment, 1e-9)
}

func TestShortInterestSentiment(t *testing.T) {
	assert.InDelta(t, -0.5, shortInterestSentiment(9.3), 1e-9)
	assert.InDelta(t, 0.5, shortInterestSentiment(1.1), 1e-9)
	assert.Zero(t, shortInterestSentiment(4.0))
	assert.Zero(t, shortInterestSentiment(0))
}

func TestDuckDuckGoRegistersUnwrappedLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Ftesla-earnings">Tesla earnings beat</a>
			<a class="result__a" href="https://news.example.org/tsla">TSLA outlook</a>
		</body></html>`))
	}))
	defer srv.Close()

	st := &fakeStore{}
	p := NewDuckDuckGo(st)
	p.baseURL = srv.URL

	out := p.FetchCompanyData(context.Background(), models.Entity{Ticker: "TSLA", Name: "Tesla, Inc."})
	require.Len(t, out, 1)
	assert.True(t, out[0].Success)
	// Two queries hit the same fixture; duplicates collapse by URL.
	assert.Equal(t, 2, out[0].RecordsStored)
	require.Len(t, st.sources, 2)
	assert.Equal(t, "https://example.com/tesla-earnings", st.sources[0].URL)
	assert.Equal(t, "web", st.sources[0].ConnectorType)
}

func TestFiscalQuarter(t *testing.T) {
	assert.Equal(t, 1, fiscalQuarter("Q1"))
	assert.Equal(t, 4, fiscalQuarter("FY"))
	assert.Zero(t, fiscalQuarter(""))
}
