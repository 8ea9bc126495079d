// testops reads the output of `go test -json` from stdin and reports the
// results of every test to the configured backends.
//
//	go test -json ./... | testops -d results.db
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/joho/godotenv"
	"github.com/raphi011/testops"
	"github.com/raphi011/testops/client"
	"github.com/raphi011/testops/internal/gotest"
	"github.com/raphi011/testops/internal/hook"
	"github.com/raphi011/testops/internal/metadata"
	"github.com/raphi011/testops/internal/storage"
)

type config struct {
	dbFile       string
	collectorURL string
	elasticURL   string
	elasticIndex string
	slackToken   string
	slackChannel string
	metadataFile string
	threadEnv    string
	passthrough  bool
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("unable to load .env file", "error", err)
	}

	if err := run(parseFlags(), os.Stdin, os.Stdout); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func parseFlags() config {
	c := config{}

	flag.StringVar(&c.dbFile, "d", "", "sqlite database file results are stored in")
	flag.StringVar(&c.collectorURL, "collector", os.Getenv("TESTOPS_COLLECTOR_URL"), "url of the testops collector")
	flag.StringVar(&c.elasticURL, "elastic", os.Getenv("TESTOPS_ELASTIC_URL"), "url of the elasticsearch cluster")
	flag.StringVar(&c.elasticIndex, "elastic-index", "testops-results", "elasticsearch index results are written to")
	flag.StringVar(&c.slackToken, "slack-token", os.Getenv("TESTOPS_SLACK_TOKEN"), "slack token used to post run summaries")
	flag.StringVar(&c.slackChannel, "slack-channel", os.Getenv("TESTOPS_SLACK_CHANNEL"), "slack channel run summaries are posted to")
	flag.StringVar(&c.metadataFile, "metadata", "", "yaml file with test metadata")
	flag.StringVar(&c.threadEnv, "thread-env", testops.DefaultThreadEnv, "environment variable that identifies the worker")
	flag.BoolVar(&c.passthrough, "passthrough", false, "write the test events read from stdin to stdout")

	flag.Parse()

	return c
}

func run(c config, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := slog.Default()
	thread := testops.ThreadFromEnv(c.threadEnv)

	backends := []testops.Backend{}

	if c.dbFile != "" {
		s, err := storage.New(c.dbFile, log)
		if err != nil {
			return err
		}
		defer s.Close()

		backends = append(backends, storage.NewRecorder(s, thread))
	}

	if c.collectorURL != "" {
		backends = append(backends, client.New(c.collectorURL, http.DefaultClient, thread))
	}

	if c.elasticURL != "" {
		es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{c.elasticURL}})
		if err != nil {
			return fmt.Errorf("creating elasticsearch client: %w", err)
		}

		backends = append(backends, hook.NewElastic(es, c.elasticIndex, log))
	}

	if c.slackToken != "" {
		s := hook.NewSlack(c.slackChannel, c.slackToken, log)
		if err := s.Verify(ctx); err != nil {
			return err
		}

		backends = append(backends, s)
	}

	if len(backends) == 0 {
		return errors.New("no backend configured, use -d, -collector, -elastic or -slack-token")
	}

	opts := []testops.Option{
		// an interrupted run must still be completed by the backends
		testops.WithContext(context.WithoutCancel(ctx)),
		testops.WithLogger(log),
		testops.WithThreadEnv(c.threadEnv),
		testops.WithNamespaceSeparator(gotest.Separator),
	}

	if c.metadataFile != "" {
		m, err := metadata.LoadFile(c.metadataFile)
		if err != nil {
			return err
		}

		opts = append(opts, testops.WithMetadataProvider(m))
	}

	r := testops.New(testops.Backends(backends...), opts...)

	if c.passthrough {
		in = io.TeeReader(in, out)
	}

	summary, err := gotest.Feed(ctx, in, r, log)
	if err != nil {
		return err
	}

	log.Info("reported test results",
		"passed", summary.Passed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"unfinished", summary.Unfinished,
		"thread", thread)

	return nil
}
