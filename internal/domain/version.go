package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrInvalidVersion is returned when a string does not start with a dotted version number.
	ErrInvalidVersion = errors.New("invalid version")
	// ErrNoTransitionPath is returned when no chain of transition tools connects two versions.
	ErrNoTransitionPath = errors.New("no transition path")
)

// DevelopTag is the branch used when no release tag serves a file.
const DevelopTag = "develop"

// versionPrefixRe captures the leading dotted number of strings such as
// "v23.2.0", "23.2" or "23.2.0-7636e6b3e9".
var versionPrefixRe = regexp.MustCompile(`^v?(\d+(?:\.\d+){0,2})`)

// Version is a parsed engine or model version.
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
}

// ParseVersion accepts "X", "X.Y" or "X.Y.Z" with an optional "v" prefix
// and an optional build suffix, which is ignored.
func ParseVersion(s string) (Version, error) {
	m := versionPrefixRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	v, err := semver.NewVersion(m[1])
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q: %w", ErrInvalidVersion, s, err)
	}
	return Version{Major: v.Major(), Minor: v.Minor(), Patch: v.Patch()}, nil
}

// String returns "X.Y.Z".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// MajorMinor returns "X.Y".
func (v Version) MajorMinor() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Dashed returns "X-Y-Z", the form used in transition tool names.
func (v Version) Dashed() string {
	return fmt.Sprintf("%d-%d-%d", v.Major, v.Minor, v.Patch)
}

func (v Version) release() *semver.Version {
	return semver.New(v.Major, v.Minor, 0, "", "")
}

// Compatibility describes how a model version relates to the engine version.
type Compatibility string

const (
	CompatMatch   Compatibility = "match"
	CompatOlder   Compatibility = "older"
	CompatNewer   Compatibility = "newer"
	CompatUnknown Compatibility = "unknown"
)

// CompareVersions compares a model version against the engine version on
// major.minor. Unparseable input yields CompatUnknown.
func CompareVersions(model, engine string) Compatibility {
	mv, err := ParseVersion(model)
	if err != nil {
		return CompatUnknown
	}
	ev, err := ParseVersion(engine)
	if err != nil {
		return CompatUnknown
	}
	switch mv.release().Compare(ev.release()) {
	case 0:
		return CompatMatch
	case -1:
		return CompatOlder
	default:
		return CompatNewer
	}
}

// TagCandidates returns the repository refs to try, in order, when
// fetching a file for the given engine version: "vX.Y.Z", "vX.Y", then
// the develop branch.
func TagCandidates(version string) []string {
	v, err := ParseVersion(version)
	if err != nil {
		return []string{DevelopTag}
	}
	return []string{"v" + v.String(), "v" + v.MajorMinor(), DevelopTag}
}

// transitionChain lists the supported versions in upgrade order.
var transitionChain = []string{"22.1", "22.2", "23.1", "23.2", "24.1", "24.2", "25.1", "25.2"}

// Transition is one upgrade step between adjacent engine versions.
type Transition struct {
	From Version
	To   Version
}

// ToolName returns the transition executable name for the target OS.
func (t Transition) ToolName(goos string) string {
	name := fmt.Sprintf("Transition-V%s-to-V%s", t.From.Dashed(), t.To.Dashed())
	if goos == "windows" {
		name += ".exe"
	}
	return name
}

func (t Transition) String() string {
	return t.From.MajorMinor() + " → " + t.To.MajorMinor()
}

// TransitionPath returns the ordered single-step upgrades from one version
// to another. Equal major.minor versions need no steps. Downgrades and
// versions outside the supported chain return ErrNoTransitionPath.
func TransitionPath(from, to string) ([]Transition, error) {
	fv, err := ParseVersion(from)
	if err != nil {
		return nil, err
	}
	tv, err := ParseVersion(to)
	if err != nil {
		return nil, err
	}
	switch CompareVersions(from, to) {
	case CompatMatch:
		return nil, nil
	case CompatNewer:
		return nil, fmt.Errorf("%w: cannot downgrade %s to %s", ErrNoTransitionPath, fv.MajorMinor(), tv.MajorMinor())
	}

	start := chainIndex(fv)
	end := chainIndex(tv)
	if start < 0 || end < 0 {
		return nil, fmt.Errorf("%w: %s to %s is outside the supported range %s-%s",
			ErrNoTransitionPath, fv.MajorMinor(), tv.MajorMinor(), transitionChain[0], transitionChain[len(transitionChain)-1])
	}

	steps := make([]Transition, 0, end-start)
	for i := start; i < end; i++ {
		a, _ := ParseVersion(transitionChain[i])
		b, _ := ParseVersion(transitionChain[i+1])
		steps = append(steps, Transition{From: a, To: b})
	}
	return steps, nil
}

func chainIndex(v Version) int {
	mm := v.MajorMinor()
	for i, c := range transitionChain {
		if c == mm {
			return i
		}
	}
	return -1
}
