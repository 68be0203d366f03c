package scope

import (
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// allowlist is an ordered set of identifiers. Order is the order of first
// appearance in the configuration, and is preserved for messages and JQL.
type allowlist struct {
	ordered []string
	members map[string]struct{}
}

// parseList splits a comma separated value, trimming whitespace and dropping
// empty items and duplicates. When fold is set, items are lower cased.
func parseList(raw string, fold bool) allowlist {
	list := allowlist{members: map[string]struct{}{}}

	for item := range strings.SplitSeq(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if fold {
			item = Fold(item)
		}
		if _, seen := list.members[item]; seen {
			continue
		}
		list.members[item] = struct{}{}
		list.ordered = append(list.ordered, item)
	}

	return list
}

func (l allowlist) contains(item string) bool {
	_, ok := l.members[item]
	return ok
}

func (l allowlist) empty() bool {
	return len(l.ordered) == 0
}

func (l allowlist) values() []string {
	return slices.Clone(l.ordered)
}

type boardList struct {
	ordered []int
	members map[int]struct{}
}

// parseBoards parses a comma separated list of board IDs. Items that are not
// integers are ignored here; configuration validation reports them.
func parseBoards(raw string) boardList {
	list := boardList{members: map[int]struct{}{}}

	for item := range strings.SplitSeq(raw, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(item))
		if err != nil {
			continue
		}
		if _, seen := list.members[id]; seen {
			continue
		}
		list.members[id] = struct{}{}
		list.ordered = append(list.ordered, id)
	}

	return list
}

func (l boardList) contains(id int) bool {
	_, ok := l.members[id]
	return ok
}

func (l boardList) strings() []string {
	s := make([]string, len(l.ordered))
	for i, id := range l.ordered {
		s[i] = strconv.Itoa(id)
	}
	return s
}

// Fold is the case folding applied to case-insensitive identifiers
// (repositories, projects, pipelines). Cache keys for those identifiers use
// it too, so a key and its scope check always agree. A Caser holds state,
// so one is created per call rather than shared between goroutines.
func Fold(s string) string {
	return cases.Lower(language.Und).String(s)
}
