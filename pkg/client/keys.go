package client

import "time"

// Entity names prefix every query key; invalidation works per entity.
const (
	FlowsEntity = "flows"
	RulesEntity = "rules"
)

const (
	ListStaleTime   = 2 * time.Minute
	DetailStaleTime = 5 * time.Minute
)

func FlowsListKey() string {
	return FlowsEntity + "/list"
}

func FlowDetailKey(id string) string {
	return FlowsEntity + "/detail/" + id
}

func RulesListKey() string {
	return RulesEntity + "/list"
}

func RuleDetailKey(id string) string {
	return RulesEntity + "/detail/" + id
}

func RuleByNameKey(name string) string {
	return RulesEntity + "/detailByName/" + name
}
