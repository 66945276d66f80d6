package scrape

// Category names for historical results.
const (
	CategoryVersions      = "Versions"
	CategoryDeleteMarkers = "DeleteMarkers"
)

// Category is a named group of records within a Result. Flat results have
// a single category with an empty name.
type Category struct {
	Name    string
	Records []Record
}

// Result is the outcome of a scrape: *Flat for current objects, or
// *Historical for versions and delete markers. Callers type-switch on the
// concrete case.
type Result interface {
	// Len is the total number of records.
	Len() int

	// Categories lists the record groups in a fixed order.
	Categories() []Category

	// Records returns all records, categories concatenated in order.
	Records() []Record

	// each visits every record for in-place post-processing.
	each(fn func(*Record))

	// merge appends other's records. other must be the same case.
	merge(other Result)

	// filter keeps the records for which keep returns true.
	filter(keep func(Record) bool)
}

// Flat holds current objects.
type Flat struct {
	Objects []Record
}

// Historical holds object versions and delete markers.
type Historical struct {
	Versions      []Record
	DeleteMarkers []Record
}

var (
	_ Result = (*Flat)(nil)
	_ Result = (*Historical)(nil)
)

// newResult returns an empty result of the case matching allVersions.
func newResult(allVersions bool) Result {
	if allVersions {
		return &Historical{}
	}
	return &Flat{}
}

func (f *Flat) Len() int { return len(f.Objects) }

func (f *Flat) Categories() []Category {
	return []Category{{Records: f.Objects}}
}

func (f *Flat) Records() []Record { return f.Objects }

func (f *Flat) each(fn func(*Record)) {
	for i := range f.Objects {
		fn(&f.Objects[i])
	}
}

func (f *Flat) merge(other Result) {
	f.Objects = append(f.Objects, other.(*Flat).Objects...)
}

func (f *Flat) filter(keep func(Record) bool) {
	f.Objects = filterRecords(f.Objects, keep)
}

func (h *Historical) Len() int { return len(h.Versions) + len(h.DeleteMarkers) }

func (h *Historical) Categories() []Category {
	return []Category{
		{Name: CategoryVersions, Records: h.Versions},
		{Name: CategoryDeleteMarkers, Records: h.DeleteMarkers},
	}
}

func (h *Historical) Records() []Record {
	all := make([]Record, 0, h.Len())
	all = append(all, h.Versions...)
	return append(all, h.DeleteMarkers...)
}

func (h *Historical) each(fn func(*Record)) {
	for i := range h.Versions {
		fn(&h.Versions[i])
	}
	for i := range h.DeleteMarkers {
		fn(&h.DeleteMarkers[i])
	}
}

func (h *Historical) merge(other Result) {
	o := other.(*Historical)
	h.Versions = append(h.Versions, o.Versions...)
	h.DeleteMarkers = append(h.DeleteMarkers, o.DeleteMarkers...)
}

func (h *Historical) filter(keep func(Record) bool) {
	h.Versions = filterRecords(h.Versions, keep)
	h.DeleteMarkers = filterRecords(h.DeleteMarkers, keep)
}

func filterRecords(records []Record, keep func(Record) bool) []Record {
	out := records[:0]
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
