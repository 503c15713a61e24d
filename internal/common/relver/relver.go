// Package relver orders upstream release version strings such as
// "v1.2.3", "1.2.3-rc1" and "2024.01".
package relver

import (
	"regexp"
	"strconv"
	"strings"
)

// Pre-release suffix priorities (lower = earlier in release cycle)
var suffixPriority = map[string]int{
	"alpha": -4,
	"a":     -4,
	"beta":  -3,
	"b":     -3,
	"pre":   -2,
	"rc":    -1,
	"":      0, // release version
	"p":     1, // patch
	"patch": 1,
}

// suffixRegex matches trailing suffixes like -rc1, _beta2, .alpha, rc3, -p1
var suffixRegex = regexp.MustCompile(`[-_.]?(alpha|beta|pre|rc|patch|a|b|p)\.?(\d*)$`)

// separatorRegex splits numeric components
var separatorRegex = regexp.MustCompile(`[._-]`)

// parseVersion breaks a version string into components for comparison
// Returns: numeric parts, suffix type, suffix num
func parseVersion(v string) ([]int, string, int) {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.TrimPrefix(v, "v")

	suffixType := ""
	suffixNum := 0
	if loc := suffixRegex.FindStringSubmatchIndex(v); loc != nil && loc[0] > 0 {
		// A bare letter only counts as a suffix after a digit (1.0a, not "beta")
		if isDigit(v[loc[0]-1]) || v[loc[0]] == '-' || v[loc[0]] == '_' || v[loc[0]] == '.' {
			suffixType = v[loc[2]:loc[3]]
			if loc[4] < loc[5] {
				suffixNum, _ = strconv.Atoi(v[loc[4]:loc[5]])
			}
			v = v[:loc[0]]
		}
	}

	parts := separatorRegex.Split(v, -1)
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		// Keep the leading digits of each component (1.0a -> 1, 0)
		end := 0
		for end < len(p) && isDigit(p[end]) {
			end++
		}
		n, _ := strconv.Atoi(p[:end])
		nums = append(nums, n)
	}

	return nums, suffixType, suffixNum
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// compareIntSlices compares two slices of integers
func compareIntSlices(a, b []int) int {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}

	for i := 0; i < maxLen; i++ {
		var av, bv int
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}

		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

// Compare compares two release version strings
// Returns: -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func Compare(v1, v2 string) int {
	nums1, suffix1, suffixNum1 := parseVersion(v1)
	nums2, suffix2, suffixNum2 := parseVersion(v2)

	if cmp := compareIntSlices(nums1, nums2); cmp != 0 {
		return cmp
	}

	// alpha < beta < pre < rc < release < p
	priority1 := suffixPriority[suffix1]
	priority2 := suffixPriority[suffix2]
	if priority1 < priority2 {
		return -1
	}
	if priority1 > priority2 {
		return 1
	}

	if suffixNum1 < suffixNum2 {
		return -1
	}
	if suffixNum1 > suffixNum2 {
		return 1
	}

	return 0
}

// Latest returns the highest version in versions, or "" when empty.
func Latest(versions []string) string {
	latest := ""
	for _, v := range versions {
		if latest == "" || Compare(v, latest) > 0 {
			latest = v
		}
	}
	return latest
}
