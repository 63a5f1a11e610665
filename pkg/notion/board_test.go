package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func boardPage(id, key, reason, status string) notionapi.Page {
	return notionapi.Page{
		ID: notionapi.ObjectID(id),
		Properties: notionapi.Properties{
			"Name":   &notionapi.TitleProperty{Title: []notionapi.RichText{{PlainText: "Strike coverage"}}},
			"Key":    &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: key}}},
			"Reason": &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: reason}}},
			"Kind":   &notionapi.SelectProperty{Select: notionapi.Option{Name: "article"}},
			"Status": &notionapi.StatusProperty{Status: notionapi.Status{Name: status}},
			"Link":   &notionapi.URLProperty{URL: "https://newsroom.example/articles/a1"},
		},
	}
}

func keyQuery(key string) interface{} {
	return mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		return ok && pf.Property == "Key" && pf.RichText != nil && pf.RichText.Equals == key
	})
}

func TestBoard_UpsertCreates(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "board", keyQuery("article:a1")).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	mc.On("CreatePage", ctx, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		st, ok := req.Properties["Status"].(notionapi.StatusProperty)
		kind, kindOK := req.Properties["Kind"].(notionapi.SelectProperty)
		return req.Parent.DatabaseID == "board" && ok && st.Status.Name == StatusNeedsAttention &&
			kindOK && kind.Select.Name == "article"
	})).Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	item, err := NewBoard(mc, "board").Upsert(ctx, BoardItem{
		Key: "article:a1", Title: "Strike coverage", Kind: "article", Reason: "quality gate exhausted",
	})
	require.NoError(t, err)
	assert.Equal(t, "page-1", item.PageID)
	assert.Equal(t, StatusNeedsAttention, item.Status)
	mc.AssertExpectations(t)
}

func TestBoard_UpsertUpdatesExisting(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "board", keyQuery("article:a1")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{boardPage("page-9", "article:a1", "old", StatusResolved)},
		}, nil).Once()
	mc.On("UpdatePage", ctx, "page-9", mock.MatchedBy(func(req *notionapi.PageUpdateRequest) bool {
		r, ok := req.Properties["Reason"].(notionapi.RichTextProperty)
		return ok && r.RichText[0].Text.Content == "bias scan failed"
	})).Return(&notionapi.Page{ID: "page-9"}, nil).Once()

	item, err := NewBoard(mc, "board").Upsert(ctx, BoardItem{Key: "article:a1", Title: "T", Reason: "bias scan failed"})
	require.NoError(t, err)
	assert.Equal(t, "page-9", item.PageID)
	mc.AssertExpectations(t)
	mc.AssertNotCalled(t, "CreatePage", mock.Anything, mock.Anything)
}

func TestBoard_UpsertRequiresKey(t *testing.T) {
	_, err := NewBoard(new(MockClient), "board").Upsert(context.Background(), BoardItem{Title: "x"})
	assert.Error(t, err)
}

func TestBoard_Resolve(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "board", keyQuery("topic:t1")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{boardPage("page-2", "topic:t1", "search failed", StatusNeedsAttention)},
		}, nil).Once()
	mc.On("UpdatePage", ctx, "page-2", mock.MatchedBy(func(req *notionapi.PageUpdateRequest) bool {
		st, ok := req.Properties["Status"].(notionapi.StatusProperty)
		return ok && st.Status.Name == StatusResolved
	})).Return(&notionapi.Page{ID: "page-2"}, nil).Once()

	require.NoError(t, NewBoard(mc, "board").Resolve(ctx, "topic:t1"))
	mc.AssertExpectations(t)
}

func TestBoard_ResolveMissingIsNoop(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()
	mc.On("QueryDatabase", ctx, "board", keyQuery("topic:none")).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()

	assert.NoError(t, NewBoard(mc, "board").Resolve(ctx, "topic:none"))
	mc.AssertNotCalled(t, "UpdatePage", mock.Anything, mock.Anything, mock.Anything)
}

func TestBoard_Open(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()
	mc.On("QueryDatabase", ctx, "board", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{boardPage("page-3", "article:a1", "reading level", StatusNeedsAttention)},
		}, nil).Once()

	items, err := NewBoard(mc, "board").Open(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, BoardItem{
		PageID: "page-3",
		Key:    "article:a1",
		Title:  "Strike coverage",
		Kind:   "article",
		Reason: "reading level",
		Status: StatusNeedsAttention,
		Link:   "https://newsroom.example/articles/a1",
	}, items[0])
}
