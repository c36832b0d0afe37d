package repair

import "strings"

// URLFields are the single-valued reference fields checked for a doubled
// storage base URL; GalleryFields hold lists of URLs checked element-wise.
var (
	URLFields     = []string{"image", "imageUrl"}
	GalleryFields = []string{"gallery"}
)

// DedupBaseURL fixes values where the storage base URL was concatenated
// twice upstream. When the base occurs more than once the string is cut to
// start at its second occurrence; a single occurrence is left alone.
func DedupBaseURL(value, base string) (string, bool) {
	if base == "" || strings.Count(value, base) < 2 {
		return value, false
	}
	first := strings.Index(value, base)
	second := strings.Index(value[first+len(base):], base) + first + len(base)
	return value[second:], true
}

// DedupGallery applies DedupBaseURL to each string element. It returns the
// corrected list and whether any element changed.
func DedupGallery(values []interface{}, base string) ([]interface{}, bool) {
	changed := false
	out := make([]interface{}, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			out[i] = v
			continue
		}
		fixed, c := DedupBaseURL(s, base)
		out[i] = fixed
		changed = changed || c
	}
	return out, changed
}
