package gotest_test

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/raphi011/testops"
	"github.com/raphi011/testops/internal/gotest"
	"github.com/raphi011/testops/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stream = `{"Action":"start","Package":"github.com/acme/shop"}
{"Action":"run","Package":"github.com/acme/shop","Test":"TestCheckout"}
{"Action":"output","Package":"github.com/acme/shop","Test":"TestCheckout","Output":"=== RUN   TestCheckout\n"}
{"Action":"output","Package":"github.com/acme/shop","Test":"TestCheckout","Output":"    shop_test.go:12: expected 1, got 2\n"}
{"Action":"output","Package":"github.com/acme/shop","Test":"TestCheckout","Output":"--- FAIL: TestCheckout (0.00s)\n"}
{"Action":"fail","Package":"github.com/acme/shop","Test":"TestCheckout","Elapsed":0}
this is not json
{"Action":"run","Package":"github.com/acme/shop","Test":"TestCart"}
{"Action":"output","Package":"github.com/acme/shop","Test":"TestCart","Output":"=== RUN   TestCart\n"}
{"Action":"pass","Package":"github.com/acme/shop","Test":"TestCart","Elapsed":0}
{"Action":"run","Package":"github.com/acme/shop","Test":"TestLegacy"}
{"Action":"output","Package":"github.com/acme/shop","Test":"TestLegacy","Output":"    shop_test.go:40: needs database\n"}
{"Action":"skip","Package":"github.com/acme/shop","Test":"TestLegacy","Elapsed":0}
{"Action":"run","Package":"github.com/acme/shop","Test":"TestHangs"}
{"Action":"fail","Package":"github.com/acme/shop","Elapsed":0.01}
`

type recordingHandler struct {
	events []testops.Event
}

func (h *recordingHandler) Handle(e testops.Event) {
	h.events = append(h.events, e)
}

type recordingBackend struct {
	testops.Discard
	results []model.Result
}

func (b *recordingBackend) AddResult(_ context.Context, r model.Result) error {
	b.results = append(b.results, r)
	return nil
}

func TestFeedEmitsLifecycleEvents(t *testing.T) {
	h := &recordingHandler{}

	summary, err := gotest.Feed(context.Background(), strings.NewReader(stream), h, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, gotest.Summary{Passed: 1, Failed: 1, Skipped: 1, Unfinished: 1}, summary)

	checkout := model.TestMethod{ClassName: "github.com/acme/shop", MethodName: "TestCheckout"}

	require.Len(t, h.events, 12)
	assert.Equal(t, testops.TestRunnerStarted{}, h.events[0])
	assert.Equal(t, testops.TestPrepared{Test: checkout}, h.events[1])
	assert.Equal(t, testops.TestFailed(checkout, "shop_test.go:12: expected 1, got 2", "shop_test.go:12: expected 1, got 2"), h.events[2])
	assert.Equal(t, testops.TestFinished{Test: checkout}, h.events[3])
	assert.Equal(t, testops.TestRunnerFinished{}, h.events[11])
}

func TestFeedThroughReporter(t *testing.T) {
	backend := &recordingBackend{}
	r := testops.New(backend, testops.WithNamespaceSeparator(gotest.Separator), testops.WithDiagnostics(&strings.Builder{}))

	_, err := gotest.Feed(context.Background(), strings.NewReader(stream), r, slog.Default())
	require.NoError(t, err)

	require.Len(t, backend.results, 3)

	failed := backend.results[0]
	assert.Equal(t, "github.com::acme::shop::TestCheckout:0", failed.Signature)
	assert.Equal(t, []string{"github.com", "acme", "shop"}, failed.Suites)
	assert.Equal(t, "test checkout", failed.Title)
	assert.Equal(t, model.StatusFailed, failed.Execution.Status)
	assert.Equal(t, "\nshop_test.go:12: expected 1, got 2\n", failed.Execution.Message)

	assert.Equal(t, model.StatusPassed, backend.results[1].Execution.Status)
	assert.Empty(t, backend.results[1].Execution.Message)

	assert.Equal(t, model.StatusSkipped, backend.results[2].Execution.Status)
	assert.Equal(t, "\nshop_test.go:40: needs database\n", backend.results[2].Execution.Message)
}

func TestFeedStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := &recordingHandler{}

	_, err := gotest.Feed(ctx, strings.NewReader(stream), h, slog.Default())
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, h.events, 2)
	assert.Equal(t, testops.TestRunnerStarted{}, h.events[0])
	assert.Equal(t, testops.TestRunnerFinished{}, h.events[1])
}
