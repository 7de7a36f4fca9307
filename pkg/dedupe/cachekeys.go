package dedupe

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Cache keys owned by this package. Search keys share a prefix so any
// mutation can invalidate every cached page wholesale.
const (
	summaryCacheKey = "storage_summary"
	searchKeyPrefix = "search:"
)

// searchCacheKey derives a deterministic key from a normalized filter set.
// Present fields are rendered as name=value pairs, sorted by name, so two
// equivalent queries always map to the same key. Free-text values are
// escaped so they cannot imitate the pair syntax and collide with a
// different filter set.
func searchCacheKey(f SearchFilters) string {
	pairs := []string{
		fmt.Sprintf("page=%d", f.Page),
		fmt.Sprintf("page_size=%d", f.PageSize),
	}
	if f.Filename != "" {
		pairs = append(pairs, "filename="+url.QueryEscape(f.Filename))
	}
	if f.Extension != "" {
		pairs = append(pairs, "extension="+url.QueryEscape(f.Extension))
	}
	if f.MinSize != nil {
		pairs = append(pairs, fmt.Sprintf("min_size=%d", *f.MinSize))
	}
	if f.MaxSize != nil {
		pairs = append(pairs, fmt.Sprintf("max_size=%d", *f.MaxSize))
	}
	if f.StartDate != nil {
		pairs = append(pairs, "start_date="+f.StartDate.UTC().Format(time.RFC3339Nano))
	}
	if f.EndDate != nil {
		pairs = append(pairs, "end_date="+f.EndDate.UTC().Format(time.RFC3339Nano))
	}
	sort.Strings(pairs)
	return searchKeyPrefix + strings.Join(pairs, "&")
}
