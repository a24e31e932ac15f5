package shared

// ListFilters represents standard list page filters.
type ListFilters struct {
	Page     int
	Limit    int
	Search   string
	IsActive *bool

	OrganizationID *int64
	BranchIDs      []int64
}

const (
	// DefaultPage is the first page.
	DefaultPage = 1
	// DefaultLimit bounds unpaged listings.
	DefaultLimit = 20
)

// Normalize applies defaults in place.
func (f *ListFilters) Normalize() {
	if f.Page <= 0 {
		f.Page = DefaultPage
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = DefaultLimit
	}
}
