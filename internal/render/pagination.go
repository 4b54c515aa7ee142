package render

// Page is one window over a sequence, derived purely from the sequence and
// the requested page. Hosts re-render from it instead of patching markup.
type Page struct {
	Number     int   `json:"page"`
	Size       int   `json:"pageSize"`
	TotalPages int   `json:"totalPages"`
	TotalItems int   `json:"totalItems"`
	Items      []any `json:"items"`
	HasPrev    bool  `json:"hasPrev"`
	HasNext    bool  `json:"hasNext"`
}

// Paginate returns the requested page of items. A non-positive pageSize
// puts everything on one page; page is clamped to [1, TotalPages].
func Paginate(items []any, pageSize, page int) Page {
	total := len(items)
	if pageSize <= 0 {
		pageSize = total
	}

	totalPages := 1
	if pageSize > 0 && total > pageSize {
		totalPages = (total + pageSize - 1) / pageSize
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if end > total {
		end = total
	}
	window := make([]any, end-start)
	copy(window, items[start:end])

	return Page{
		Number:     page,
		Size:       pageSize,
		TotalPages: totalPages,
		TotalItems: total,
		Items:      window,
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
	}
}

func (p Page) props() map[string]any {
	return map[string]any{
		"page":       p.Number,
		"pageSize":   p.Size,
		"totalPages": p.TotalPages,
		"totalItems": p.TotalItems,
		"items":      p.Items,
		"hasPrev":    p.HasPrev,
		"hasNext":    p.HasNext,
	}
}
