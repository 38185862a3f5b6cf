package driver

// SkipRegistry holds the control IDs that already failed on the current page.
// It is cleared whenever a new page is entered.
type SkipRegistry struct {
	cursor    int
	hasCursor bool
	ids       map[string]struct{}
}

func NewSkipRegistry() *SkipRegistry {
	return &SkipRegistry{ids: map[string]struct{}{}}
}

// Reset starts a new page cycle for cursor.
func (r *SkipRegistry) Reset(cursor int, ok bool) {
	r.cursor, r.hasCursor = cursor, ok
	clear(r.ids)
}

func (r *SkipRegistry) Add(id string) {
	r.ids[id] = struct{}{}
}

func (r *SkipRegistry) Has(id string) bool {
	_, ok := r.ids[id]
	return ok
}

func (r *SkipRegistry) Len() int { return len(r.ids) }

// Cursor is the page the current cycle belongs to.
func (r *SkipRegistry) Cursor() (int, bool) { return r.cursor, r.hasCursor }
