// Package slackapi adapts slack-go to the handful of Web API calls the bot
// makes and keeps the cached workspace roster.
package slackapi

import (
	"context"
	"fmt"
	"io"

	"github.com/slack-go/slack"
)

// Client wraps a slack-go client with the bot's token.
type Client struct {
	api *slack.Client
}

func New(api *slack.Client) *Client {
	return &Client{api: api}
}

// ConversationReplies returns every message of the thread rooted at (or
// containing only) ts, following pagination cursors.
func (c *Client) ConversationReplies(ctx context.Context, channel, ts string) ([]slack.Message, error) {
	params := &slack.GetConversationRepliesParameters{
		ChannelID: channel,
		Timestamp: ts,
		Limit:     200,
	}

	var all []slack.Message
	for {
		msgs, hasMore, cursor, err := c.api.GetConversationRepliesContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("conversations.replies %s/%s: %w", channel, ts, err)
		}
		all = append(all, msgs...)
		if !hasMore || cursor == "" {
			return all, nil
		}
		params.Cursor = cursor
	}
}

// DownloadFile streams a private file into w using the bot token.
func (c *Client) DownloadFile(ctx context.Context, url string, w io.Writer) error {
	if err := c.api.GetFileContext(ctx, url, w); err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	return nil
}

// ReactionCount returns how many times the named reaction was added to the
// message.
func (c *Client) ReactionCount(ctx context.Context, channel, ts, name string) (int, error) {
	item, err := c.api.GetReactionsContext(ctx, slack.NewRefToMessage(channel, ts), slack.NewGetReactionsParameters())
	if err != nil {
		return 0, fmt.Errorf("reactions.get %s/%s: %w", channel, ts, err)
	}
	count := 0
	for _, r := range item.Reactions {
		if r.Name == name {
			count += r.Count
		}
	}
	return count, nil
}

func (c *Client) AddReaction(ctx context.Context, channel, ts, name string) error {
	return c.api.AddReactionContext(ctx, name, slack.NewRefToMessage(channel, ts))
}

func (c *Client) RemoveReaction(ctx context.Context, channel, ts, name string) error {
	return c.api.RemoveReactionContext(ctx, name, slack.NewRefToMessage(channel, ts))
}

// PostThreadReply posts blocks into channel, threaded under threadTS.
func (c *Client) PostThreadReply(ctx context.Context, channel, threadTS, fallback string, blocks []slack.Block) error {
	_, _, err := c.api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(fallback, false),
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionTS(threadTS),
	)
	if err != nil {
		return fmt.Errorf("post thread reply: %w", err)
	}
	return nil
}

// PostDirect sends blocks to a user's direct-message channel with the bot.
func (c *Client) PostDirect(ctx context.Context, userID, fallback string, blocks []slack.Block) error {
	_, _, err := c.api.PostMessageContext(ctx, userID,
		slack.MsgOptionText(fallback, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return fmt.Errorf("post direct message to %s: %w", userID, err)
	}
	return nil
}

// LookupUser fetches a single user through users.info. Email requires the
// users:read.email scope.
func (c *Client) LookupUser(ctx context.Context, userID string) (UserInfo, error) {
	u, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return UserInfo{}, fmt.Errorf("users.info %s: %w", userID, err)
	}
	return toUserInfo(*u), nil
}

// ListUsers returns the full workspace roster.
func (c *Client) ListUsers(ctx context.Context) ([]UserInfo, error) {
	users, err := c.api.GetUsersContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("users.list: %w", err)
	}
	out := make([]UserInfo, 0, len(users))
	for _, u := range users {
		out = append(out, toUserInfo(u))
	}
	return out, nil
}

func toUserInfo(u slack.User) UserInfo {
	name := u.Profile.DisplayName
	if name == "" {
		name = u.Profile.RealName
	}
	if name == "" {
		name = u.RealName
	}
	if name == "" {
		name = u.Name
	}
	return UserInfo{
		ID:          u.ID,
		DisplayName: name,
		Email:       u.Profile.Email,
	}
}
