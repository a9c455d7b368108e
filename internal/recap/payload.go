// Package recap ingests inbound meeting recap webhook payloads.
package recap

import (
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Payload is the inbound webhook body. The recap id is not a top-level field;
// it rides inside the meeting link URL and must be parsed out.
type Payload struct {
	MeetingInfo PayloadMeetingInfo `json:"meetingInfo"`
	Attendees   PayloadAttendees   `json:"attendees"`
	ActionItems PayloadActionItems `json:"actionItems"`
	Summary     string             `json:"summary"`
}

type PayloadMeetingInfo struct {
	MeetingLink string     `json:"meetingLink"`
	Title       string     `json:"title"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
}

type PayloadAttendees struct {
	Actual  []string `json:"actual"`
	Invited []string `json:"invited"`
}

type PayloadActionItems struct {
	MyItems     []PayloadActionItem `json:"myItems"`
	OthersItems []PayloadActionItem `json:"othersItems"`
}

type PayloadActionItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// ParseRecapID extracts the externally assigned recap id from the meeting
// link: the last non-empty path segment of the URL.
func ParseRecapID(meetingLink string) (string, error) {
	if strings.TrimSpace(meetingLink) == "" {
		return "", eris.New("recap: empty meeting link")
	}
	u, err := url.Parse(meetingLink)
	if err != nil {
		return "", eris.Wrapf(err, "recap: parse meeting link %q", meetingLink)
	}
	segments := strings.Split(u.Path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if seg := strings.TrimSpace(segments[i]); seg != "" {
			return seg, nil
		}
	}
	return "", eris.Errorf("recap: meeting link %q carries no id segment", meetingLink)
}
