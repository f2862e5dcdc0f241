// Package history implements the read views over a session's messages:
// sorting, the filtered and paginated views, and the API projection.
package history

import (
	"sort"

	"github.com/xiaot623/gogo/convstore/internal/domain"
)

// DefaultPageSize is used when a caller passes a non-positive page size.
const DefaultPageSize = 20

// Page is one slice of a paginated read.
type Page struct {
	Messages   []domain.Message
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// Sort returns a copy of msgs ordered by CreatedAt, with Seq breaking ties.
// A zero CreatedAt sorts as the earliest possible time. The descending order
// is the exact reverse of the ascending one.
func Sort(msgs []domain.Message, desc bool) []domain.Message {
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j])
	})
	if desc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func less(a, b domain.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Seq < b.Seq
}

// SystemEntry builds the synthetic system-prompt entry attached to the head
// of every read view.
func SystemEntry(sessionID, prompt string) domain.Message {
	return domain.Message{
		SessionID:   sessionID,
		Role:        domain.RoleSystem,
		TextContent: prompt,
	}
}

// conversation drops system rows and sorts the rest.
func conversation(msgs []domain.Message, desc bool) []domain.Message {
	kept := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == domain.RoleSystem {
			continue
		}
		kept = append(kept, m)
	}
	return Sort(kept, desc)
}

func withPrompt(sessionID, prompt string, msgs []domain.Message) []domain.Message {
	if prompt == "" {
		return msgs
	}
	out := make([]domain.Message, 0, len(msgs)+1)
	out = append(out, SystemEntry(sessionID, prompt))
	return append(out, msgs...)
}

// Filter returns up to limit non-system messages in the requested order,
// headed by the system prompt entry when prompt is set. limit <= 0 means no
// limit.
func Filter(sessionID string, msgs []domain.Message, prompt string, limit int, desc bool) []domain.Message {
	sorted := conversation(msgs, desc)
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return withPrompt(sessionID, prompt, sorted)
}

// Paginate returns one page of non-system messages. page is clamped into
// [1, TotalPages]; an empty conversation yields page 1 of 0.
func Paginate(sessionID string, msgs []domain.Message, prompt string, page, pageSize int, desc bool) Page {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	sorted := conversation(msgs, desc)
	total := len(sorted)
	totalPages := (total + pageSize - 1) / pageSize

	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return Page{
		Messages:   withPrompt(sessionID, prompt, sorted[start:end]),
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}
