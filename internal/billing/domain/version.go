package billing

import "time"

// ResolveVersion returns the version whose date, read through dateOf, is the
// latest one not after at. Ties resolve to the entry that appears last.
func ResolveVersion[V any](versions []V, at time.Time, dateOf func(V) time.Time) (V, error) {
	var zero V
	if len(versions) == 0 {
		return zero, ErrEmptyVersions
	}
	found := -1
	var best time.Time
	for i, version := range versions {
		date := dateOf(version)
		if date.After(at) {
			continue
		}
		if found == -1 || !date.Before(best) {
			found = i
			best = date
		}
	}
	if found == -1 {
		return zero, ErrNoMatchingVersion
	}
	return versions[found], nil
}
