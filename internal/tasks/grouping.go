package tasks

import (
	"sort"

	"github.com/repoaudit/repoaudit/internal/types"
)

// Strategy selects how open tasks are batched for consumption.
type Strategy string

const (
	// ByFile groups tasks sharing a source file.
	ByFile Strategy = "by_file"
	// ByPriority is a flat ordering with no batching.
	ByPriority Strategy = "by_priority"
	// Smart groups by file, orders groups by their most urgent member, and
	// breaks ties by group size so larger consolidated fixes surface first.
	Smart Strategy = "smart"
)

// Valid reports whether s is a known grouping strategy.
func (s Strategy) Valid() bool {
	switch s {
	case ByFile, ByPriority, Smart:
		return true
	}
	return false
}

// Group is an ordered batch of related tasks.
type Group struct {
	// Key identifies the group: a file path, or a synthetic key for tasks
	// with no file attribution.
	Key string
	// Priority is the minimum (most urgent) priority among members.
	Priority int
	Tasks    []*types.Task
}

// Size returns the number of tasks in the group.
func (g *Group) Size() int {
	return len(g.Tasks)
}

const noFileKey = "(project)"

// GroupTasks batches tasks according to the strategy. Smart and ByPriority
// return groups in consumption order (most urgent first); ByFile returns
// them in path order.
func GroupTasks(tasks []*types.Task, strategy Strategy) []*Group {
	switch strategy {
	case ByPriority:
		return groupByPriority(tasks)
	case Smart:
		return smartGrouping(tasks)
	default:
		return groupByFile(tasks)
	}
}

// GetNextGroup returns the top group to work on, or nil when every task is
// resolved.
func GetNextGroup(groups []*Group) *Group {
	if len(groups) == 0 {
		return nil
	}
	return groups[0]
}

// FilterByPriority drops groups less urgent than maxPriority (higher
// numeric value = less urgent).
func FilterByPriority(groups []*Group, maxPriority int) []*Group {
	var kept []*Group
	for _, g := range groups {
		if g.Priority <= maxPriority {
			kept = append(kept, g)
		}
	}
	return kept
}

// TopGroups returns the first n groups in consumption order.
func TopGroups(groups []*Group, n int) []*Group {
	if n > len(groups) {
		n = len(groups)
	}
	return groups[:n]
}

// groupByFile batches tasks sharing a source file; file-less tasks form
// one project-level group. Groups come back in path order.
func groupByFile(tasks []*types.Task) []*Group {
	groups := buildFileGroups(tasks)
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Key < groups[j].Key
	})
	return groups
}

func buildFileGroups(tasks []*types.Task) []*Group {
	byKey := make(map[string][]*types.Task)
	for _, t := range tasks {
		key := t.SourceFile
		if key == "" {
			key = noFileKey
		}
		byKey[key] = append(byKey[key], t)
	}

	groups := make([]*Group, 0, len(byKey))
	for key, members := range byKey {
		groups = append(groups, newGroup(key, members))
	}
	return groups
}

// groupByPriority is the flat ordering: one group per task, most urgent
// first, ties broken by creation order.
func groupByPriority(tasks []*types.Task) []*Group {
	ordered := make([]*types.Task, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	groups := make([]*Group, 0, len(ordered))
	for _, t := range ordered {
		groups = append(groups, newGroup(t.SourceFile, []*types.Task{t}))
	}
	return groups
}

// smartGrouping groups by file, then orders groups by their most urgent
// member and breaks ties by size descending, so the largest consolidated
// fix at a given urgency surfaces first.
func smartGrouping(tasks []*types.Task) []*Group {
	groups := buildFileGroups(tasks)
	sortGroups(groups)
	return groups
}

func newGroup(key string, members []*types.Task) *Group {
	g := &Group{Key: key, Tasks: members, Priority: 4}
	for _, t := range members {
		if t.Priority < g.Priority {
			g.Priority = t.Priority
		}
	}
	// Inside a group, most urgent first.
	sort.SliceStable(g.Tasks, func(i, j int) bool {
		if g.Tasks[i].Priority != g.Tasks[j].Priority {
			return g.Tasks[i].Priority < g.Tasks[j].Priority
		}
		return g.Tasks[i].CreatedAt.Before(g.Tasks[j].CreatedAt)
	})
	return g
}

// sortGroups orders groups by minimum priority ascending (lower value =
// more urgent), then by size descending, then by key for determinism.
func sortGroups(groups []*Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Priority != groups[j].Priority {
			return groups[i].Priority < groups[j].Priority
		}
		if len(groups[i].Tasks) != len(groups[j].Tasks) {
			return len(groups[i].Tasks) > len(groups[j].Tasks)
		}
		return groups[i].Key < groups[j].Key
	})
}
