// Package collector turns a chat thread into a transcript the summarizer can
// read, downloading supported attachments along the way.
package collector

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/its-the-vibe/JiraBolt/internal/logger"
	"github.com/its-the-vibe/JiraBolt/internal/slackapi"
)

const unknownAuthor = "Unknown"

// ErrWrongLocation means a whole-thread trigger was placed on a reply.
var ErrWrongLocation = errors.New("trigger reaction is not on the thread root")

// ThreadSource is the chat API surface the collector reads from.
type ThreadSource interface {
	ConversationReplies(ctx context.Context, channel, ts string) ([]slack.Message, error)
	DownloadFile(ctx context.Context, url string, w io.Writer) error
}

// Directory resolves user ids to display names.
type Directory interface {
	Get(ctx context.Context, id string) (slackapi.UserInfo, bool)
}

// Image is an inline image attached to a transcript entry.
type Image struct {
	Name      string
	MediaType string
	Base64    string
}

// DataURL renders the image as a data: URL.
func (i Image) DataURL() string {
	return "data:" + i.MediaType + ";base64," + i.Base64
}

// Entry is one message of the thread.
type Entry struct {
	Timestamp time.Time
	Author    string
	Text      string
	Images    []Image
}

// Line is the textual form sent to the summarizer.
func (e Entry) Line(loc *time.Location) string {
	return fmt.Sprintf("[%s] %s: %s", e.Timestamp.In(loc).Format("2006-01-02 15:04:05"), e.Author, e.Text)
}

// File is a downloaded attachment kept for upload to the tracker.
type File struct {
	Name      string
	MediaType string
	Data      []byte
}

// Transcript is the collected thread. RootTS is the timestamp of the first
// delivered message and is what back-links point at.
type Transcript struct {
	RootTS  string
	Entries []Entry
	Files   []File
}

// ImageCount returns the number of inline images across all entries.
func (t Transcript) ImageCount() int {
	n := 0
	for _, e := range t.Entries {
		n += len(e.Images)
	}
	return n
}

type Collector struct {
	source ThreadSource
	dir    Directory
}

func New(source ThreadSource, dir Directory) *Collector {
	return &Collector{source: source, dir: dir}
}

// Collect fetches the thread containing ts. With wholeThread set, ts must be
// the thread root, otherwise ErrWrongLocation is returned before any file is
// downloaded. Without it only the message at ts is kept. RootTS always names
// the thread parent. Individual attachment failures skip that attachment only.
func (c *Collector) Collect(ctx context.Context, channel, ts string, wholeThread bool) (Transcript, error) {
	msgs, err := c.source.ConversationReplies(ctx, channel, ts)
	if err != nil {
		return Transcript{}, err
	}
	if len(msgs) == 0 {
		return Transcript{}, fmt.Errorf("thread %s/%s has no messages", channel, ts)
	}

	root := msgs[0]
	if wholeThread && root.ThreadTimestamp != "" && root.ThreadTimestamp != ts {
		return Transcript{}, ErrWrongLocation
	}

	t := Transcript{RootTS: root.Timestamp}
	if root.ThreadTimestamp != "" {
		t.RootTS = root.ThreadTimestamp
	}
	if !wholeThread {
		msgs = only(msgs, ts)
		if len(msgs) == 0 {
			return Transcript{}, fmt.Errorf("message %s not found in thread %s/%s", ts, channel, t.RootTS)
		}
	}
	for _, msg := range msgs {
		entry := Entry{
			Timestamp: parseTS(msg.Timestamp),
			Author:    c.author(ctx, msg),
			Text:      msg.Text,
		}
		for _, f := range msg.Files {
			file, ok := c.download(ctx, f)
			if !ok {
				continue
			}
			t.Files = append(t.Files, file)
			entry.Images = append(entry.Images, Image{
				Name:      file.Name,
				MediaType: file.MediaType,
				Base64:    base64.StdEncoding.EncodeToString(file.Data),
			})
		}
		t.Entries = append(t.Entries, entry)
	}

	logger.Debug("Collected %d messages and %d files from %s/%s", len(t.Entries), len(t.Files), channel, ts)
	return t, nil
}

func (c *Collector) author(ctx context.Context, msg slack.Message) string {
	if msg.User != "" {
		if u, ok := c.dir.Get(ctx, msg.User); ok && u.DisplayName != "" {
			return u.DisplayName
		}
	}
	return unknownAuthor
}

func (c *Collector) download(ctx context.Context, f slack.File) (File, bool) {
	url := f.URLPrivateDownload
	if url == "" {
		url = f.URLPrivate
	}
	if url == "" {
		return File{}, false
	}

	mediaType := MediaType(f.Mimetype, f.Name, url)
	if !IsSupported(mediaType) {
		logger.Debug("Skipping file %s with unsupported media type %s", f.Name, mediaType)
		return File{}, false
	}

	var buf bytes.Buffer
	if err := c.source.DownloadFile(ctx, url, &buf); err != nil {
		logger.Warn("Skipping file %s: %v", f.Name, err)
		return File{}, false
	}
	data := buf.Bytes()
	if mediaType == "image/gif" && IsAnimatedGIF(data) {
		logger.Debug("Skipping animated GIF %s", f.Name)
		return File{}, false
	}

	return File{Name: f.Name, MediaType: mediaType, Data: data}, true
}

// only keeps the message posted at ts. The replies API returns the parent
// along with every reply even when ts names a reply.
func only(msgs []slack.Message, ts string) []slack.Message {
	for _, m := range msgs {
		if m.Timestamp == ts {
			return []slack.Message{m}
		}
	}
	return nil
}

// parseTS converts a Slack "seconds.micros" timestamp to a time.
func parseTS(ts string) time.Time {
	secs, micros, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}
	}
	us, _ := strconv.ParseInt(micros, 10, 64)
	return time.Unix(s, us*int64(time.Microsecond))
}
