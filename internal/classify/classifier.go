// Package classify maps surviving diff keys onto remediation categories.
package classify

import (
	"sort"

	"circuitsync/internal/domain"
)

// Triggers lists, per category, the leaf names that require it
type Triggers map[domain.Category][]string

// DefaultTriggers are the trigger keys shared by every vendor
func DefaultTriggers() Triggers {
	return Triggers{
		domain.CategoryBandwidth: {
			"committedInformationRate",
			"policerName",
			"epAccessA2NFlowCir",
			"epAccessA2NFlowEir",
			"eir",
			"cir",
			"bandwidth",
			"servicePolicyInput",
			"policer_name",
		},
		domain.CategoryDescription: {"serviceName", "userLabel", "portDescription", "serviceDescription", "name"},
		domain.CategoryPriorityBit: {"egressCosPbit", "epAccessFlowCVlanTag", "c_tag_pbit"},
	}
}

// Classifier resolves categories per vendor, falling back to the wildcard entry
type Classifier struct {
	byVendor map[domain.Vendor]map[string]domain.CategorySet
}

// New builds a classifier. A nil map uses DefaultTriggers for every vendor.
func New(triggers map[domain.Vendor]Triggers) *Classifier {
	if triggers == nil {
		triggers = map[domain.Vendor]Triggers{domain.Wildcard: DefaultTriggers()}
	}
	c := &Classifier{byVendor: make(map[domain.Vendor]map[string]domain.CategorySet, len(triggers))}
	for vendor, t := range triggers {
		index := make(map[string]domain.CategorySet)
		for category, leaves := range t {
			for _, leaf := range leaves {
				index[leaf] = index[leaf].Add(category)
			}
		}
		c.byVendor[vendor] = index
	}
	return c
}

func (c *Classifier) index(vendor domain.Vendor) map[string]domain.CategorySet {
	if idx, ok := c.byVendor[vendor]; ok {
		return idx
	}
	return c.byVendor[domain.Wildcard]
}

// Classify returns the categories the pair requires and the keys that match
// none. Unclassified keys stay in the diff; callers report them.
func (c *Classifier) Classify(pair domain.DiffPair, vendor domain.Vendor) (domain.CategorySet, []string) {
	idx := c.index(vendor)
	var required domain.CategorySet
	var unclassified []string
	for _, key := range pair.Keys() {
		set, ok := idx[domain.Leaf(key)]
		if !ok {
			unclassified = append(unclassified, key)
			continue
		}
		required |= set
	}
	return required, unclassified
}

// TriggerKeys returns the leaves that trigger category for vendor, sorted
func (c *Classifier) TriggerKeys(vendor domain.Vendor, category domain.Category) []string {
	var out []string
	for leaf, set := range c.index(vendor) {
		if set.Has(category) {
			out = append(out, leaf)
		}
	}
	sort.Strings(out)
	return out
}
