package notion

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Board statuses.
const (
	StatusNeedsAttention = "Needs Attention"
	StatusResolved       = "Resolved"
)

// BoardItem is one row on the editorial intervention board. Key is the
// stable identity, e.g. "article:<id>".
type BoardItem struct {
	PageID string
	Key    string
	Title  string
	Kind   string
	Reason string
	Status string
	Link   string
}

// Board keeps one Notion page per flagged newsroom item.
type Board struct {
	client Client
	dbID   string
}

// NewBoard creates a board over the database dbID.
func NewBoard(c Client, dbID string) *Board {
	return &Board{client: c, dbID: dbID}
}

// Find returns the item with key, or nil when there is none.
func (b *Board) Find(ctx context.Context, key string) (*BoardItem, error) {
	resp, err := b.client.QueryDatabase(ctx, b.dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Key",
			RichText: &notionapi.TextFilterCondition{Equals: key},
		},
		PageSize: 1,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion: find board item %s", key)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	item := parseBoardPage(resp.Results[0])
	return &item, nil
}

// Upsert creates the item or updates the existing page with the same key.
// An upserted item is always reopened.
func (b *Board) Upsert(ctx context.Context, item BoardItem) (*BoardItem, error) {
	if item.Key == "" {
		return nil, eris.New("notion: board item requires a key")
	}
	item.Status = StatusNeedsAttention

	existing, err := b.Find(ctx, item.Key)
	if err != nil {
		return nil, err
	}

	props := boardProperties(item)
	if existing != nil {
		if _, err := b.client.UpdatePage(ctx, existing.PageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
			return nil, eris.Wrapf(err, "notion: update board item %s", item.Key)
		}
		item.PageID = existing.PageID
		return &item, nil
	}

	page, err := b.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(b.dbID),
		},
		Properties: props,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion: create board item %s", item.Key)
	}
	item.PageID = string(page.ID)
	return &item, nil
}

// Resolve marks the item with key as resolved. A missing item is not an error.
func (b *Board) Resolve(ctx context.Context, key string) error {
	existing, err := b.Find(ctx, key)
	if err != nil || existing == nil {
		return err
	}
	_, err = b.client.UpdatePage(ctx, existing.PageID, &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{
			"Status": notionapi.StatusProperty{Status: notionapi.Status{Name: StatusResolved}},
		},
	})
	return eris.Wrapf(err, "notion: resolve board item %s", key)
}

// Open lists every item still needing attention.
func (b *Board) Open(ctx context.Context) ([]BoardItem, error) {
	pages, err := QueryByStatus(ctx, b.client, b.dbID, StatusNeedsAttention)
	if err != nil {
		return nil, err
	}
	items := make([]BoardItem, 0, len(pages))
	for _, p := range pages {
		items = append(items, parseBoardPage(p))
	}
	return items, nil
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}}
}

func boardProperties(item BoardItem) notionapi.Properties {
	props := notionapi.Properties{
		"Name":   notionapi.TitleProperty{Type: notionapi.PropertyTypeTitle, Title: richText(item.Title)},
		"Key":    notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: richText(item.Key)},
		"Reason": notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: richText(item.Reason)},
		"Status": notionapi.StatusProperty{Status: notionapi.Status{Name: item.Status}},
	}
	if item.Kind != "" {
		props["Kind"] = notionapi.SelectProperty{Type: notionapi.PropertyTypeSelect, Select: notionapi.Option{Name: item.Kind}}
	}
	if item.Link != "" {
		props["Link"] = notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: item.Link}
	}
	return props
}

func plainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, t := range rt {
		b.WriteString(t.PlainText)
		if t.PlainText == "" && t.Text != nil {
			b.WriteString(t.Text.Content)
		}
	}
	return b.String()
}

func parseBoardPage(p notionapi.Page) BoardItem {
	item := BoardItem{PageID: string(p.ID)}
	for name, prop := range p.Properties {
		switch v := prop.(type) {
		case *notionapi.TitleProperty:
			item.Title = plainText(v.Title)
		case *notionapi.RichTextProperty:
			switch name {
			case "Key":
				item.Key = plainText(v.RichText)
			case "Reason":
				item.Reason = plainText(v.RichText)
			}
		case *notionapi.SelectProperty:
			if name == "Kind" {
				item.Kind = v.Select.Name
			}
		case *notionapi.StatusProperty:
			item.Status = v.Status.Name
		case *notionapi.URLProperty:
			item.Link = v.URL
		}
	}
	return item
}
