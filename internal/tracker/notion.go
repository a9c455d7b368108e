package tracker

import (
	"context"

	"github.com/jomei/notionapi"

	"github.com/sells-group/accountsync/pkg/notion"
)

// NotionTracker creates pages in a Notion task database. External ids are the
// created page ids.
type NotionTracker struct {
	client     notion.Client
	databaseID string
}

func NewNotionTracker(client notion.Client, databaseID string) *NotionTracker {
	return &NotionTracker{client: client, databaseID: databaseID}
}

func (t *NotionTracker) CreateIssue(ctx context.Context, issue Issue) (string, error) {
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Title: []notionapi.RichText{{Text: &notionapi.Text{Content: issue.Title}}},
		},
	}
	if len(issue.Labels) > 0 {
		var tags []notionapi.Option
		for _, l := range issue.Labels {
			tags = append(tags, notionapi.Option{Name: l})
		}
		props["Tags"] = notionapi.MultiSelectProperty{MultiSelect: tags}
	}

	req := &notionapi.PageCreateRequest{
		Parent:     notionapi.Parent{DatabaseID: notionapi.DatabaseID(t.databaseID)},
		Properties: props,
	}
	if issue.Body != "" {
		req.Children = []notionapi.Block{
			&notionapi.ParagraphBlock{
				BasicBlock: notionapi.BasicBlock{
					Object: notionapi.ObjectTypeBlock,
					Type:   notionapi.BlockTypeParagraph,
				},
				Paragraph: notionapi.Paragraph{
					RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: issue.Body}}},
				},
			},
		}
	}

	page, err := t.client.CreatePage(ctx, req)
	if err != nil {
		return "", err
	}
	return string(page.ID), nil
}
