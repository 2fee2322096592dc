package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackChannel posts lifecycle events to a Slack channel, for operator
// visibility into provisioning failures, purges and maintenance windows.
type SlackChannel struct {
	client    *slack.Client
	channelID string
}

func NewSlackChannel(token, channelID string) *SlackChannel {
	return &SlackChannel{client: slack.New(token), channelID: channelID}
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Send(ctx context.Context, event Event) error {
	text := fmt.Sprintf("*%s* tenant `%s`: %s", event.Type, event.TenantID, event.Message)

	_, _, err := s.client.PostMessageContext(ctx, s.channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return fmt.Errorf("notify.SlackChannel.Send: %w", err)
	}

	return nil
}
