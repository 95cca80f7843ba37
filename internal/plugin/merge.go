// internal/plugin/merge.go
package plugin

import (
	"reflect"

	"bnc-service/pkg/plugin"
)

// MergeSettings folds a freshly read attribute tree into the tree a host
// already displays. Missing groups and children are added. A child that was
// renamed (same title, new name) is hidden rather than removed. Values are
// overwritten and limits replaced on writable entries. The returned updates
// list every existing entry whose value or limits changed.
func MergeSettings(existing, incoming []plugin.Param) ([]plugin.Param, []plugin.ParamUpdate) {
	merged := cloneParams(existing)
	var updates []plugin.ParamUpdate

	for _, attr := range incoming {
		idx := indexOf(merged, attr.Name)
		if idx < 0 {
			merged = append(merged, cloneParam(attr))
			continue
		}

		target := &merged[idx]
		if !attr.IsGroup() {
			if u, changed := applyValue(target, attr, []string{attr.Name}); changed {
				updates = append(updates, u)
			}
			continue
		}

		for _, expected := range attr.Children {
			child, ok := target.Child(expected.Name)
			if !ok {
				for i := range target.Children {
					old := &target.Children[i]
					if old.Title == expected.Title && old.Name != expected.Name {
						old.Hidden = true
						break
					}
				}
				target.Children = append(target.Children, cloneParam(expected))
				continue
			}
			if u, changed := applyValue(child, expected, []string{attr.Name, expected.Name}); changed {
				updates = append(updates, u)
			}
		}
	}

	return merged, updates
}

func applyValue(dst *plugin.Param, src plugin.Param, path []string) (plugin.ParamUpdate, bool) {
	update := plugin.ParamUpdate{Path: path, Value: src.Value}
	changed := false

	if src.Value != nil && !reflect.DeepEqual(dst.Value, src.Value) {
		dst.Value = src.Value
		changed = true
	}
	if len(src.Limits) > 0 && !src.ReadOnly && !reflect.DeepEqual(dst.Limits, src.Limits) {
		dst.Limits = append([]interface{}(nil), src.Limits...)
		update.Limits = dst.Limits
		changed = true
	}
	if update.Value == nil {
		update.Value = dst.Value
	}
	return update, changed
}

func indexOf(params []plugin.Param, name string) int {
	for i := range params {
		if params[i].Name == name {
			return i
		}
	}
	return -1
}

func cloneParams(params []plugin.Param) []plugin.Param {
	if params == nil {
		return nil
	}
	out := make([]plugin.Param, len(params))
	for i, p := range params {
		out[i] = cloneParam(p)
	}
	return out
}

func cloneParam(p plugin.Param) plugin.Param {
	if p.Limits != nil {
		p.Limits = append([]interface{}(nil), p.Limits...)
	}
	if p.Min != nil {
		p.Min = plugin.Float(*p.Min)
	}
	if p.Max != nil {
		p.Max = plugin.Float(*p.Max)
	}
	p.Children = cloneParams(p.Children)
	return p
}
