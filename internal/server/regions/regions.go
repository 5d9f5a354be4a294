// Package regions holds the configured region → bucket mapping and the
// policy used to choose among regions.
package regions

import (
	"math/rand/v2"
	"sort"
)

// Regions is an immutable set of configured regions.
type Regions struct {
	buckets map[string]string
	names   []string
}

// New copies m; later changes to m are not observed.
func New(m map[string]string) *Regions {
	r := &Regions{buckets: make(map[string]string, len(m))}
	for name, bucket := range m {
		r.buckets[name] = bucket
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r
}

// Bucket returns the bucket configured for region.
func (r *Regions) Bucket(region string) (string, bool) {
	b, ok := r.buckets[region]
	return b, ok
}

func (r *Regions) Has(region string) bool {
	_, ok := r.buckets[region]
	return ok
}

// Names returns the configured region names in sorted order.
func (r *Regions) Names() []string {
	return append([]string(nil), r.names...)
}

func (r *Regions) Len() int {
	return len(r.names)
}

// Filter returns the members of candidates that are configured, keeping order.
func (r *Regions) Filter(candidates []string) []string {
	var out []string
	for _, c := range candidates {
		if r.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Missing returns configured regions absent from have, sorted.
func (r *Regions) Missing(have []string) []string {
	present := make(map[string]struct{}, len(have))
	for _, h := range have {
		present[h] = struct{}{}
	}
	var out []string
	for _, n := range r.names {
		if _, ok := present[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// Selector picks one of a non-empty list of candidate regions.
type Selector interface {
	Pick(candidates []string) string
}

// RandomSelector picks uniformly at random.
type RandomSelector struct{}

func (RandomSelector) Pick(candidates []string) string {
	return candidates[rand.IntN(len(candidates))]
}

// FirstSelector always picks the first candidate.
type FirstSelector struct{}

func (FirstSelector) Pick(candidates []string) string {
	return candidates[0]
}

// Target returns preferred when it is configured, otherwise a configured
// region chosen by sel. It returns "" when no regions are configured.
func (r *Regions) Target(preferred string, sel Selector) string {
	if preferred != "" && r.Has(preferred) {
		return preferred
	}
	if len(r.names) == 0 {
		return ""
	}
	return sel.Pick(r.names)
}
