package shared

// Filter carries the pagination and ordering options the list endpoints
// accept. Repositories validate OrderBy against their own column whitelist
// before interpolating it.
type Filter struct {
	Page     int
	PageSize int
	OrderBy  string
	OrderDir string
	Search   string
	Filters  map[string]interface{}
}

// Paginate reports whether the filter requests pagination, and the offset
// and limit to apply when it does.
func (f Filter) Paginate() (offset, limit int, ok bool) {
	if f.Page <= 0 || f.PageSize <= 0 {
		return 0, 0, false
	}
	return (f.Page - 1) * f.PageSize, f.PageSize, true
}
