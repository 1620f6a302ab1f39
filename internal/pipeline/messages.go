package pipeline

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/its-the-vibe/JiraBolt/internal/summarizer"
)

const (
	failureHeader   = "Jira 이슈 생성에 실패했습니다."
	duplicateHeader = "이미 지라 이슈가 생성되었습니다."
	createdHeader   = "Jira 이슈가 생성되었습니다!"

	usageHint = "이모지를 스레드 최상단에 달면 스레드 전체를 요약하고, 이모지를 내부에 달면 해당 메시지만 요약합니다. 생성된 내용을 확인해 주세요."

	// Section text is capped at 3000 characters by Slack.
	maxSectionText = 2900
)

func mrkdwn(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

func plain(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, true, false)
}

func threadLinkText(link string) string {
	return fmt.Sprintf("<%s|스레드 바로가기>", link)
}

func codeBlock(s string) string {
	return "```" + truncate(s, maxSectionText-6) + "```"
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

// notice is a private message explaining why no issue was created.
func notice(header string, link string, lines ...string) []slack.Block {
	elements := make([]slack.MixedElement, 0, len(lines)+1)
	for _, l := range lines {
		elements = append(elements, mrkdwn(truncate(l, maxSectionText)))
	}
	elements = append(elements, mrkdwn(threadLinkText(link)))
	return []slack.Block{
		slack.NewHeaderBlock(plain(header)),
		slack.NewContextBlock("", elements...),
	}
}

func duplicateNotice(emoji, link string) []slack.Block {
	return notice(duplicateHeader, link, fmt.Sprintf(
		"이미 :%s: 이모지가 스레드에 달려있어서 지라 이슈를 생성할 수 없습니다. "+
			"히스토리가 이미 지라 티켓으로 저장되었으니 어사인을 변경하시거나, 스레드에서 논의를 지속하거나, "+
			"이모지를 모두 지우고 다시 시도해보세요.", emoji))
}

func wrongLocationNotice(emoji, link string) []slack.Block {
	return notice(failureHeader, link, fmt.Sprintf(
		":%s: 이모지는 스레드 최상단 메시지에 달아야 합니다. 이모지를 옮겨서 다시 시도해보세요.", emoji))
}

func collectFailedNotice(link string, err error) []slack.Block {
	return notice(failureHeader, link,
		"스레드 내용을 불러오지 못했습니다. 잠시 후 다시 시도해보세요.",
		"Error Message: "+codeBlock(err.Error()))
}

func summarizerUnavailableNotice(link string, err error) []slack.Block {
	return notice(failureHeader, link,
		"요약 서버에 요청하지 못했습니다. 잠시 후 이모지를 다시 달아 재시도해보세요.",
		"Error Message: "+codeBlock(err.Error()))
}

func tooLongNotice(link, raw string) []slack.Block {
	return notice(failureHeader, link,
		"너무 많은 글자수가 스레드에 있진 않은지 확인해 보세요.\nError Message: "+codeBlock(raw))
}

func unusableDraftNotice(link, raw string, problems []string) []slack.Block {
	lines := []string{codeBlock(raw)}
	if len(problems) > 0 {
		lines = append(lines, "- "+strings.Join(problems, "\n- "))
	}
	lines = append(lines, "GPT 가 생성한 내용을 지라로 전달할 수 없어서 실패했습니다. 지라를 생성하기에 앞서 스레드 요약이 충분한지 확인해보세요.")
	return notice(failureHeader, link, lines...)
}

func createFailedNotice(link string, err error) []slack.Block {
	return notice(failureHeader, link,
		"지라 이슈를 생성하는 도중에 실패했습니다. 필수 필드가 모두 채워졌는지 확인하거나 잠시 후 다시 시도해보세요. "+
			"스레드 최상단에 이모지를 달면 스레드 내용을 분석해 스레드를 단 사람이 보고자, 이모지를 단 사람이 어사인되어 이슈를 생성합니다.",
		"Error Message: "+codeBlock(err.Error()))
}

// confirmation is what the thread reply echoes back after creation.
type confirmation struct {
	Key               string
	URL               string
	Draft             summarizer.IssueDraft
	ReporterChatID    string
	AssigneeChatID    string
	GuideURL          string
	FailedAttachments int
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

func (c confirmation) fallback() string {
	return fmt.Sprintf("%s %s: %s", createdHeader, c.Key, c.Draft.Summary)
}

func (c confirmation) blocks() []slack.Block {
	d := c.Draft
	summary := strings.NewReplacer("\r", `\r`, "\n", `\n`).Replace(d.Summary)

	blocks := []slack.Block{
		slack.NewHeaderBlock(plain(createdHeader)),
		slack.NewContextBlock("", mrkdwn(usageHint)),
		slack.NewSectionBlock(mrkdwn(fmt.Sprintf("<%s|%s>", c.URL, c.Key)), nil, nil),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			mrkdwn("*Summary*: " + truncate(summary, 1900)),
			mrkdwn("*Issue Type*: " + d.IssueType),
		}, nil),
		slack.NewSectionBlock(mrkdwn("*Description*: "+truncate(d.Description, maxSectionText)), nil, nil),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			mrkdwn(fmt.Sprintf("*Reporter*: <@%s>", c.ReporterChatID)),
			mrkdwn(fmt.Sprintf("*Assignee*: <@%s>", c.AssigneeChatID)),
		}, nil),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			mrkdwn("*Priority*: " + orNone(d.Priority)),
			mrkdwn("*Due Date*: " + orNone(d.DueDate)),
		}, nil),
	}

	if d.IsBug() {
		props := "None"
		if len(d.BugProperty) > 0 {
			props = strings.Join(d.BugProperty, ", ")
		}
		blocks = append(blocks,
			slack.NewSectionBlock(nil, []*slack.TextBlockObject{
				mrkdwn("*Environment*: " + orNone(d.Environment)),
				mrkdwn("*Bug Property*: " + props),
			}, nil),
		)
		if c.GuideURL != "" {
			blocks = append(blocks, slack.NewContextBlock("",
				mrkdwn(fmt.Sprintf("<%s|버그 등록 가이드> 문서를 참고하여 이슈 필드를 수정해 주세요.", c.GuideURL))))
		}
	}

	if c.FailedAttachments > 0 {
		blocks = append(blocks, slack.NewContextBlock("",
			mrkdwn(fmt.Sprintf(":warning: 첨부파일 %d개를 업로드하지 못했습니다.", c.FailedAttachments))))
	}
	return blocks
}
