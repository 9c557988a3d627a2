package response

type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int64 `json:"total_pages"`
	TotalItems int64 `json:"total_items"`
	HasMore    bool  `json:"has_more"`
	From       int   `json:"from"`
	To         int   `json:"to"`
}

// NewPagination describes page (1-based) of size pageSize holding count items out of total.
func NewPagination(page, pageSize, count int, total int64) *Pagination {
	p := &Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
	}
	if pageSize > 0 {
		p.TotalPages = (total + int64(pageSize) - 1) / int64(pageSize)
	}
	if count > 0 {
		p.From = (page-1)*pageSize + 1
		p.To = p.From + count - 1
	}
	p.HasMore = int64(page) < p.TotalPages
	return p
}
