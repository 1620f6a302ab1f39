package main

import "github.com/its-the-vibe/JiraBolt/internal/pipeline"

// ReactionAddedEvent is the Events API envelope the Slack relay publishes
// for reaction_added.
type ReactionAddedEvent struct {
	Token   string `json:"token"`
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Event   struct {
		Type     string `json:"type"`
		User     string `json:"user"`
		Reaction string `json:"reaction"`
		Item     struct {
			Type    string `json:"type"`
			Channel string `json:"channel"`
			Ts      string `json:"ts"`
		} `json:"item"`
		ItemUser string `json:"item_user"`
		EventTs  string `json:"event_ts"`
	} `json:"event"`
}

func (e ReactionAddedEvent) toPipeline() pipeline.ReactionEvent {
	return pipeline.ReactionEvent{
		Reaction:   e.Event.Reaction,
		UserID:     e.Event.User,
		ItemUserID: e.Event.ItemUser,
		Channel:    e.Event.Item.Channel,
		TS:         e.Event.Item.Ts,
	}
}

// MemberJoinedChannelEvent is the relay envelope for member_joined_channel.
// Only its arrival matters: it invalidates the roster cache.
type MemberJoinedChannelEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Event   struct {
		Type        string `json:"type"`
		User        string `json:"user"`
		Channel     string `json:"channel"`
		ChannelType string `json:"channel_type"`
		Team        string `json:"team"`
		Inviter     string `json:"inviter"`
	} `json:"event"`
}
