package collector_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/raphi011/testops"
	"github.com/raphi011/testops/client"
	"github.com/raphi011/testops/internal/collector"
	"github.com/raphi011/testops/internal/model"
	"github.com/raphi011/testops/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type test struct {
	srv    *httptest.Server
	client *client.Client
}

func acceptanceTest(t *testing.T) *test {
	t.Helper()

	s, err := storage.New("", slog.Default())
	require.NoError(t, err)

	c := collector.New(collector.DefaultConfig(), s, slog.Default())

	srv := httptest.NewServer(c.Router())

	t.Cleanup(func() {
		srv.Close()
		_ = s.Close()
	})

	return &test{
		srv:    srv,
		client: client.New(srv.URL, srv.Client(), "worker-1"),
	}
}

func TestReporterForwardsResultsToCollector(t *testing.T) {
	i := acceptanceTest(t)

	r := testops.New(i.client, testops.WithDiagnostics(&bytes.Buffer{}))

	failing := testops.TestMethod{ClassName: `Acme\Shop\CheckoutTest`, MethodName: "testPayWithCard", Line: 21}
	passing := testops.TestMethod{ClassName: `Acme\Shop\CheckoutTest`, MethodName: "testEmptyCart", Line: 40}

	r.Handle(testops.TestRunnerStarted{})
	r.Handle(testops.TestPrepared{Test: failing})
	r.Handle(testops.TestFailed(failing, "card declined", "CheckoutTest.php:25"))
	r.Handle(testops.TestFinished{Test: failing})
	r.Handle(testops.TestPrepared{Test: passing})
	r.Handle(testops.TestPassed(passing))
	r.Handle(testops.TestFinished{Test: passing})
	r.Handle(testops.TestRunnerFinished{})

	require.NotEmpty(t, i.client.RunID())

	run, err := i.client.GetRun(context.Background(), i.client.RunID())
	require.NoError(t, err)

	assert.Equal(t, "worker-1", run.Thread)
	assert.True(t, run.Completed())
	require.Len(t, run.Results, 2)

	assert.Equal(t, "Acme::Shop::CheckoutTest::testPayWithCard:21", run.Results[0].Signature)
	assert.Equal(t, "test pay with card", run.Results[0].Title)
	assert.Equal(t, model.StatusFailed, run.Results[0].Execution.Status)
	assert.Equal(t, "\ncard declined\n", run.Results[0].Execution.Message)
	assert.Equal(t, []string{"Acme", "Shop", "CheckoutTest"}, run.Results[0].Suites)
	assert.Equal(t, model.StatusPassed, run.Results[1].Execution.Status)

	runs, err := i.client.GetRuns(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestGetUnknownRunReturns404(t *testing.T) {
	i := acceptanceTest(t)

	_, err := i.client.GetRun(context.Background(), "not-found")

	var reqError client.RequestError

	if !errors.As(err, &reqError) {
		t.Fatalf("expected error of type RequestError but got %T: %v", err, err)
	}

	assert.Equal(t, http.StatusNotFound, reqError.ResponseCode)
}

func TestAddResultToCompletedRunFails(t *testing.T) {
	i := acceptanceTest(t)
	ctx := context.Background()

	require.NoError(t, i.client.StartRun(ctx))
	require.NoError(t, i.client.CompleteRun(ctx))

	err := i.client.AddResult(ctx, model.Result{Signature: "A::m:1"})

	var reqError client.RequestError
	require.ErrorAs(t, err, &reqError)
	assert.Equal(t, http.StatusBadRequest, reqError.ResponseCode)
}

func TestMalformedResultIsRejected(t *testing.T) {
	i := acceptanceTest(t)

	require.NoError(t, i.client.StartRun(context.Background()))

	res, err := http.Post(i.srv.URL+"/runs/"+i.client.RunID()+"/results", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestClientRequiresStartedRun(t *testing.T) {
	i := acceptanceTest(t)

	assert.Error(t, i.client.AddResult(context.Background(), model.Result{}))
	assert.Error(t, i.client.CompleteRun(context.Background()))
}

func TestMetricsAreExposed(t *testing.T) {
	i := acceptanceTest(t)

	res, err := http.Get(i.srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestBrowsersGetRunAsHTML(t *testing.T) {
	i := acceptanceTest(t)

	require.NoError(t, i.client.StartRun(context.Background()))

	req, err := http.NewRequest(http.MethodGet, i.srv.URL+"/runs/"+i.client.RunID(), nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", res.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "Run "+i.client.RunID())
}
