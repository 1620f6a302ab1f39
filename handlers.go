package main

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/its-the-vibe/JiraBolt/internal/pipeline"
)

// dispatcher starts a pipeline run for an event.
type dispatcher interface {
	Dispatch(ev pipeline.ReactionEvent) bool
}

type rosterInvalidator interface {
	Invalidate()
}

// runSocketMode receives events over a Socket Mode connection until ctx is
// cancelled.
func runSocketMode(ctx context.Context, sm *socketmode.Client, d dispatcher, roster rosterInvalidator) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-sm.Events:
				if !ok {
					return
				}
				handleSocketEvent(evt, func(req socketmode.Request) { sm.Ack(req) }, d, roster)
			}
		}
	}()
	return sm.RunContext(ctx)
}

func handleSocketEvent(evt socketmode.Event, ack func(socketmode.Request), d dispatcher, roster rosterInvalidator) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		Info("Connecting to Slack Socket Mode...")

	case socketmode.EventTypeConnected:
		Info("Connected to Slack Socket Mode")

	case socketmode.EventTypeConnectionError:
		Error("Socket Mode connection error: %v", evt.Data)

	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		// Ack before the run starts; Slack redelivers anything unacked after 3s.
		if evt.Request != nil {
			ack(*evt.Request)
		}
		handleEventsAPI(apiEvent, d, roster)
	}
}

func handleEventsAPI(apiEvent slackevents.EventsAPIEvent, d dispatcher, roster rosterInvalidator) {
	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.ReactionAddedEvent:
		if ev.Item.Type != "" && ev.Item.Type != "message" {
			return
		}
		d.Dispatch(pipeline.ReactionEvent{
			Reaction:   ev.Reaction,
			UserID:     ev.User,
			ItemUserID: ev.ItemUser,
			Channel:    ev.Item.Channel,
			TS:         ev.Item.Timestamp,
		})
	case *slackevents.MemberJoinedChannelEvent:
		Debug("User %s joined %s, invalidating roster", ev.User, ev.Channel)
		roster.Invalidate()
	}
}

func subscribeToReactions(ctx context.Context, rdb *redis.Client, d dispatcher, config Config) {
	pubsub := rdb.Subscribe(ctx, config.RedisReactionChannel)
	defer pubsub.Close()

	Info("Subscribed to Redis channel: %s", config.RedisReactionChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg == nil {
				continue
			}
			handleReactionPayload(msg.Payload, d)
		}
	}
}

func handleReactionPayload(payload string, d dispatcher) {
	var event ReactionAddedEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		Error("Error unmarshaling reaction event: %v", err)
		return
	}

	if event.Event.Type != "reaction_added" {
		return
	}
	if event.Event.Item.Type != "" && event.Event.Item.Type != "message" {
		return
	}

	Debug("Received reaction %s from user %s", event.Event.Reaction, event.Event.User)
	d.Dispatch(event.toPipeline())
}

func subscribeToMemberJoins(ctx context.Context, rdb *redis.Client, roster rosterInvalidator, config Config) {
	pubsub := rdb.Subscribe(ctx, config.RedisMemberJoinedChannel)
	defer pubsub.Close()

	Info("Subscribed to Redis channel: %s", config.RedisMemberJoinedChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg == nil {
				continue
			}
			handleMemberJoinedPayload(msg.Payload, roster)
		}
	}
}

func handleMemberJoinedPayload(payload string, roster rosterInvalidator) {
	var event MemberJoinedChannelEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		Error("Error unmarshaling member joined event: %v", err)
		return
	}
	if event.Event.Type != "member_joined_channel" {
		return
	}
	Debug("User %s joined %s, invalidating roster", event.Event.User, event.Event.Channel)
	roster.Invalidate()
}
