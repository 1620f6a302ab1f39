// Package pipeline turns a trigger reaction into a filed Jira issue: it
// filters reactions, runs the collect, summarize, resolve and publish stages
// for each one on its own worker, and tells the user what happened.
package pipeline

import (
	"fmt"
	"strings"
)

// ReactionEvent is a reaction added to a message, whichever event source
// delivered it.
type ReactionEvent struct {
	Reaction   string
	UserID     string // who reacted; becomes the assignee
	ItemUserID string // author of the reacted message; becomes the reporter
	Channel    string
	TS         string
}

func (e ReactionEvent) String() string {
	return fmt.Sprintf("%s on %s/%s by %s", e.Reaction, e.Channel, e.TS, e.UserID)
}

// Trigger is a reaction name that starts issue creation. WholeThread
// triggers must be placed on the thread root and summarise every reply;
// the others summarise only the reacted message.
type Trigger struct {
	Emoji       string `yaml:"emoji"`
	WholeThread bool   `yaml:"whole_thread"`
}

// MatchTrigger returns the configured trigger for reaction, if any.
func MatchTrigger(triggers []Trigger, reaction string) (Trigger, bool) {
	// Skin-tone variants arrive as "name::skin-tone-2".
	name, _, _ := strings.Cut(reaction, "::")
	for _, t := range triggers {
		if t.Emoji == name {
			return t, true
		}
	}
	return Trigger{}, false
}

// ThreadLink is the permalink of a message in the workspace.
func ThreadLink(workspace, channel, ts string) string {
	return fmt.Sprintf("https://%s/archives/%s/p%s", workspace, channel, strings.ReplaceAll(ts, ".", ""))
}
