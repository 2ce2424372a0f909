package form

import "slices"

// Value is a collected field value: a string, or an ordered list of strings
// for multi-select fields.
type Value struct {
	list  bool
	str   string
	items []string
}

// Str returns a single-string Value.
func Str(s string) Value { return Value{str: s} }

// List returns a list Value. A nil list becomes empty.
func List(items ...string) Value {
	if items == nil {
		items = []string{}
	}
	return Value{list: true, items: slices.Clone(items)}
}

// IsList reports whether v holds a list.
func (v Value) IsList() bool { return v.list }

// String returns the single value, or "" for lists.
func (v Value) String() string { return v.str }

// Strings returns a copy of the list, or a one-element list for a
// non-empty single value.
func (v Value) Strings() []string {
	if v.list {
		return slices.Clone(v.items)
	}
	if v.str == "" {
		return []string{}
	}
	return []string{v.str}
}

// Empty reports whether v has no content.
func (v Value) Empty() bool {
	if v.list {
		return len(v.items) == 0
	}
	return v.str == ""
}

// Values maps field names to collected values.
type Values map[string]Value

// Get returns the string value for name.
func (v Values) Get(name string) string { return v[name].String() }

// Clone returns a deep copy.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		if val.list {
			out[k] = List(val.items...)
		} else {
			out[k] = val
		}
	}
	return out
}

// Map flattens v into a JSON-ready mapping: strings stay strings and lists
// become []string.
func (v Values) Map() map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		if val.list {
			out[k] = val.Strings()
		} else {
			out[k] = val.str
		}
	}
	return out
}

// blank returns add-mode values: "" for every field, [] for multi-selects.
func blank(t Template) Values {
	out := make(Values, len(t))
	for _, f := range t {
		if isMulti(f) {
			out[f.common().Name] = List()
		} else {
			out[f.common().Name] = Str("")
		}
	}
	return out
}
