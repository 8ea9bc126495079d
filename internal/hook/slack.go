package hook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"github.com/raphi011/testops/internal/model"
	"github.com/slack-go/slack"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// maxSectionText is the maximum length of the text of a section block
// accepted by the slack api.
const maxSectionText = 3000

// Slack sends a summary to a slack channel when a run contains failed tests.
type Slack struct {
	api             *slack.Client
	notifyChannelID string

	results []model.Result

	log *slog.Logger
}

func NewSlack(channelID, token string, log *slog.Logger, options ...slack.Option) *Slack {
	return &Slack{
		api:             slack.New(token, options...),
		notifyChannelID: channelID,
		log:             log,
	}
}

func (h *Slack) Name() string {
	return "Slack"
}

// Verify checks the auth token.
func (h *Slack) Verify(ctx context.Context) error {
	_, err := h.api.AuthTestContext(ctx)
	if err != nil {
		return errors.Wrap(err, "invalid auth token")
	}

	return nil
}

func (h *Slack) StartRun(ctx context.Context) error {
	h.results = []model.Result{}

	return nil
}

func (h *Slack) AddResult(ctx context.Context, r model.Result) error {
	h.results = append(h.results, r)

	return nil
}

func (h *Slack) CompleteRun(ctx context.Context) error {
	failed := []model.Result{}
	counts := map[model.Status]int{}

	for _, r := range h.results {
		counts[r.Execution.Status]++

		if r.Execution.Status == model.StatusFailed || r.Execution.Status == model.StatusInvalid {
			failed = append(failed, r)
		}
	}

	if len(failed) == 0 {
		return nil
	}

	summary := strings.Builder{}

	summary.WriteString(fmt.Sprintf("Test run finished with %d failed tests.", len(failed)))
	summary.WriteString("\n\n")

	statuses := maps.Keys(counts)
	slices.Sort(statuses)

	for _, s := range statuses {
		summary.WriteString(fmt.Sprintf("%s: %d  ", s, counts[s]))
	}

	summary.WriteString("\n\nFailed:\n")

	for i, r := range failed {
		line := fmt.Sprintf("- %s (%s, thread %s)\n", r.Title, r.Signature, r.Execution.Thread)

		// leave room for the line that counts the omitted tests
		if summary.Len()+len(line) > maxSectionText-64 {
			summary.WriteString(fmt.Sprintf("... and %d more", len(failed)-i))
			break
		}

		summary.WriteString(line)
	}

	newMarkdownSection := slack.NewSectionBlock(
		slack.NewTextBlockObject(
			"mrkdwn",
			summary.String(),
			false, false,
		),

		nil, nil)

	msg := []slack.MsgOption{
		slack.MsgOptionBlocks(newMarkdownSection),
	}

	_, _, err := h.api.PostMessageContext(ctx, h.notifyChannelID, msg...)
	if err != nil {
		return errors.Wrap(err, "unable to send slack message")
	}

	h.log.Info("sent run summary to slack", "channel", h.notifyChannelID, "failed", len(failed))

	return nil
}
