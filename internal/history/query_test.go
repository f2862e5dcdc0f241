package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaot623/gogo/convstore/internal/domain"
)

func makeMessages(n int) []domain.Message {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := make([]domain.Message, 0, n)
	for i := 0; i < n; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		msgs = append(msgs, domain.Message{
			ID:          fmt.Sprintf("m%03d", i),
			Role:        role,
			TextContent: fmt.Sprintf("message %d", i),
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
			Seq:         int64(i + 1),
		})
	}
	return msgs
}

func ids(msgs []domain.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestSortOrdering(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := []domain.Message{
		{ID: "c", CreatedAt: base.Add(time.Minute), Seq: 3},
		{ID: "b2", CreatedAt: base, Seq: 2},
		{ID: "zero"},
		{ID: "b1", CreatedAt: base, Seq: 1},
	}

	asc := Sort(msgs, false)
	assert.Equal(t, []string{"zero", "b1", "b2", "c"}, ids(asc))

	desc := Sort(msgs, true)
	assert.Equal(t, []string{"c", "b2", "b1", "zero"}, ids(desc))

	// input untouched
	assert.Equal(t, "c", msgs[0].ID)
}

func TestSortDescIsExactReverse(t *testing.T) {
	msgs := makeMessages(15)
	asc := Sort(msgs, false)
	desc := Sort(msgs, true)
	require.Len(t, desc, len(asc))
	for i := range asc {
		assert.Equal(t, asc[i].ID, desc[len(desc)-1-i].ID)
	}
	for i := 1; i < len(asc); i++ {
		assert.False(t, asc[i].CreatedAt.Before(asc[i-1].CreatedAt))
	}
}

func TestFilter(t *testing.T) {
	msgs := makeMessages(5)
	msgs = append(msgs, domain.Message{ID: "sys", Role: domain.RoleSystem, TextContent: "stray"})

	out := Filter("s1", msgs, "be helpful", 2, true)
	require.Len(t, out, 3)
	assert.Equal(t, domain.RoleSystem, out[0].Role)
	assert.Equal(t, "be helpful", out[0].TextContent)
	assert.Equal(t, []string{"m004", "m003"}, ids(out[1:]))

	out = Filter("s1", msgs, "be helpful", 2, false)
	require.Len(t, out, 3)
	assert.Equal(t, domain.RoleSystem, out[0].Role)
	assert.Equal(t, []string{"m000", "m001"}, ids(out[1:]))

	out = Filter("s1", msgs, "", 0, false)
	assert.Len(t, out, 5)
	for _, m := range out {
		assert.NotEqual(t, domain.RoleSystem, m.Role)
	}
}

func TestPaginateTotals(t *testing.T) {
	msgs := makeMessages(107)

	page := Paginate("s1", msgs, "", 1, 20, false)
	assert.Equal(t, 107, page.Total)
	assert.Equal(t, 6, page.TotalPages)
	assert.Equal(t, 1, page.Page)
	assert.Len(t, page.Messages, 20)

	page = Paginate("s1", msgs, "", 7, 20, false)
	assert.Equal(t, 6, page.Page)
	assert.Len(t, page.Messages, 7)
	assert.Equal(t, "m100", page.Messages[0].ID)

	page = Paginate("s1", msgs, "", 0, 20, true)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, "m106", page.Messages[0].ID)
}

func TestPaginatePromptAndDefaults(t *testing.T) {
	msgs := makeMessages(3)

	page := Paginate("s1", msgs, "prompt", 1, 0, false)
	assert.Equal(t, DefaultPageSize, page.PageSize)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.TotalPages)
	require.Len(t, page.Messages, 4)
	assert.Equal(t, domain.RoleSystem, page.Messages[0].Role)
	assert.Equal(t, "s1", page.Messages[0].SessionID)

	desc := Paginate("s1", msgs, "prompt", 1, 10, true)
	assert.Equal(t, domain.RoleSystem, desc.Messages[0].Role)
	assert.Equal(t, "m002", desc.Messages[1].ID)
}

func TestPaginateEmpty(t *testing.T) {
	page := Paginate("s1", nil, "", 3, 10, false)
	assert.Equal(t, 0, page.Total)
	assert.Equal(t, 0, page.TotalPages)
	assert.Equal(t, 1, page.Page)
	assert.Empty(t, page.Messages)
}
