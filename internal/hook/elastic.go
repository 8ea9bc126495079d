package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/raphi011/testops/internal/model"
)

// Elastic indexes every result as a document so test runs can be searched
// next to the logs of the systems under test.
type Elastic struct {
	client *elasticsearch.Client
	index  string

	runID string

	log *slog.Logger
}

func NewElastic(client *elasticsearch.Client, index string, log *slog.Logger) *Elastic {
	return &Elastic{
		client: client,
		index:  index,
		log:    log,
	}
}

// Name of the backend.
func (e *Elastic) Name() string {
	return "elastic-search"
}

// RunID returns the id documents are indexed under when a result does not
// carry one.
func (e *Elastic) RunID() string {
	return e.runID
}

func (e *Elastic) StartRun(ctx context.Context) error {
	e.runID = uuid.NewString()

	e.log.Debug("indexing results", "index", e.index, "run-id", e.runID)

	return nil
}

// CompleteRun refreshes the index so the results of the run are searchable.
func (e *Elastic) CompleteRun(ctx context.Context) error {
	res, err := e.client.Indices.Refresh(
		e.client.Indices.Refresh.WithContext(ctx),
		e.client.Indices.Refresh.WithIndex(e.index),
	)
	if err != nil {
		return errors.Wrap(err, "refreshing index")
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.Errorf("refreshing index %s: %s", e.index, res.Status())
	}

	return nil
}

func (e *Elastic) AddResult(ctx context.Context, r model.Result) error {
	if r.RunID == "" {
		r.RunID = e.runID
	}

	body, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshalling result")
	}

	res, err := e.client.Index(e.index, bytes.NewReader(body),
		e.client.Index.WithContext(ctx),
		e.client.Index.WithDocumentID(documentID(r)),
	)
	if err != nil {
		return errors.Wrap(err, "indexing result")
	}
	defer res.Body.Close()

	if res.IsError() {
		reason, _ := io.ReadAll(res.Body)

		return errors.Errorf("indexing result %s: %s: %s", r.Signature, res.Status(), reason)
	}

	return nil
}

// documentID is stable per run and signature, so delivering a result twice
// overwrites the first document.
func documentID(r model.Result) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(r.RunID+"/"+r.Signature)).String()
}
