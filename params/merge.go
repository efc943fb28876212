package params

// Merge returns the merge-patch of patch onto base without touching either input.
//
// For each key of patch: nested objects on both sides merge recursively, a nil value
// deletes the key, and any other value (scalar or array) replaces the base value.
// An object patched onto a non-object starts from an empty object, so nulls nested
// inside it are dropped.
func Merge(base, patch Params) Params {
	out := base.Clone()
	if out == nil {
		out = Params{}
	}
	out.Patch(patch)
	return out
}

// Patch applies patch onto p in place with the same rules as Merge.
func (p Params) Patch(patch Params) {
	for key, value := range patch {
		if value == nil {
			delete(p, key)
			continue
		}
		p[key] = mergeValue(p[key], value)
	}
}

// WithDefaults seeds defaults and merge-patches p onto them.
func (p Params) WithDefaults(defaults Params) Params {
	return Merge(defaults, p)
}

func mergeValue(target, patch any) any {
	patchMap, ok := asMap(patch)
	if !ok {
		return cloneValue(patch)
	}

	result, ok := asMap(target)
	if !ok {
		result = make(map[string]any, len(patchMap))
	}
	for key, value := range patchMap {
		if value == nil {
			delete(result, key)
			continue
		}
		result[key] = mergeValue(result[key], value)
	}
	return result
}
