package repository

import (
	"strconv"
	"strings"
)

// Version is a namespace version such as "2.0".
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// ParseVersion parses "2", "2.0" or "2.0.1".
func ParseVersion(s string) (Version, bool) {
	if s == "" {
		return Version{}, false
	}
	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return Version{}, false
	}
	var v Version
	for i, p := range parts {
		if p == "" || p[0] == '+' || p[0] == '-' {
			return Version{}, false
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Version{}, false
		}
		switch i {
		case 0:
			v.Major = uint32(n)
		case 1:
			v.Minor = uint32(n)
		case 2:
			v.Patch = uint32(n)
		}
	}
	return v, true
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmp(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmp(v.Minor, o.Minor)
	default:
		return cmp(v.Patch, o.Patch)
	}
}

func cmp(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (v Version) String() string {
	s := strconv.FormatUint(uint64(v.Major), 10) + "." + strconv.FormatUint(uint64(v.Minor), 10)
	if v.Patch != 0 {
		s += "." + strconv.FormatUint(uint64(v.Patch), 10)
	}
	return s
}

// SplitRequirement splits a dependency string "GLib-2.0" into namespace
// and version.
func SplitRequirement(dep string) (namespace, version string, ok bool) {
	i := strings.LastIndexByte(dep, '-')
	if i <= 0 || i == len(dep)-1 {
		return "", "", false
	}
	return dep[:i], dep[i+1:], true
}

// fileName returns the typelib file name of namespace at version.
func fileName(namespace, version string) string {
	return namespace + "-" + version + ".typelib"
}
