package github

import (
	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	lru "github.com/hashicorp/golang-lru/v2"
)

// releaseTags remembers which release tag served files for an engine
// version. The develop branch is never stored, so it always stays the last
// ref tried.
type releaseTags struct {
	byVersion *lru.Cache[string, string]
}

func newReleaseTags(size int) *releaseTags {
	if size < 1 {
		size = 1
	}
	// New only fails for a non-positive size.
	c, _ := lru.New[string, string](size)
	return &releaseTags{byVersion: c}
}

// candidates returns the refs to try for version, with a remembered
// release tag moved ahead of the other release tags.
func (r *releaseTags) candidates(version string) (refs []string, hit bool) {
	refs = domain.TagCandidates(version)
	tag, ok := r.byVersion.Get(version)
	if !ok {
		return refs, false
	}
	out := make([]string, 0, len(refs))
	out = append(out, tag)
	for _, ref := range refs {
		if ref != tag {
			out = append(out, ref)
		}
	}
	return out, true
}

// remember stores tag for version unless it is the develop branch.
func (r *releaseTags) remember(version, tag string) {
	if tag == domain.DevelopTag {
		return
	}
	r.byVersion.Add(version, tag)
}

func (r *releaseTags) len() int {
	return r.byVersion.Len()
}
