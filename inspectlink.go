package main

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	fullInspectLinkRegex = regexp.MustCompile(`steam://rungame/730/\d+/\+csgo_econ_action_preview\s([MS])(\d+)A(\d+)D(\d+)`)
	bareInspectLinkRegex = regexp.MustCompile(`([MS])(\d+)A(\d+)D(\d+)`)
)

// ParseInspectLink parses a CS2 inspect link, accepting both the full
// steam:// protocol link and the bare "[MS]<id>A<id>D<id>" fragment a
// caller may paste directly. Returns ErrInvalidLink otherwise.
func ParseInspectLink(link string) (InspectLink, error) {
	link = strings.ReplaceAll(link, "%20", " ")

	if m := fullInspectLinkRegex.FindStringSubmatch(link); m != nil {
		return inspectLinkFromMatch(m), nil
	}
	if m := bareInspectLinkRegex.FindStringSubmatch(link); m != nil {
		return inspectLinkFromMatch(m), nil
	}
	return InspectLink{}, fmt.Errorf("%w: %q", ErrInvalidLink, link)
}

func inspectLinkFromMatch(m []string) InspectLink {
	ownerKind, owner, a, d := m[1], m[2], m[3], m[4]
	link := InspectLink{A: a, D: d, S: "0", M: "0"}
	if ownerKind == "S" {
		link.S = owner
	} else {
		link.M = owner
	}
	return link
}

// Valid reports whether l satisfies the invariant of SPEC_FULL §3:
// exactly one of S/M is non-"0", and A/D are both present.
func (l InspectLink) Valid() bool {
	if l.A == "" || l.D == "" {
		return false
	}
	sSet := l.S != "" && l.S != "0"
	mSet := l.M != "" && l.M != "0"
	return sSet != mSet
}
