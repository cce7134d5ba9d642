package submission

import "strings"

// Resolver looks up logical fields in a raw submission using an ordered list
// of candidate raw field names per logical field.
type Resolver struct {
	aliases map[string][]string
}

// NewResolver copies aliases so later changes by the caller are not observed.
func NewResolver(aliases map[string][]string) *Resolver {
	copied := make(map[string][]string, len(aliases))
	for field, names := range aliases {
		copied[field] = append([]string(nil), names...)
	}
	return &Resolver{aliases: copied}
}

// Candidates returns the raw names tried for field. A field without an alias
// entry is looked up under its own name.
func (r *Resolver) Candidates(field string) []string {
	if names, ok := r.aliases[field]; ok && len(names) > 0 {
		return append([]string(nil), names...)
	}
	return []string{field}
}

// Resolve returns the first non-null value found for field. Each candidate is
// tried as a literal key first (Kobo flattens groups into "group/question"
// keys) and then, when it contains "/", as a path through nested maps.
// Absence is reported with ok == false and is not an error.
func (r *Resolver) Resolve(record Value, field string) (Value, bool) {
	if record.Kind() != KindMap {
		return Value{}, false
	}
	for _, name := range r.Candidates(field) {
		if v, ok := record.Get(name); ok && !v.IsNull() {
			return v, true
		}
		if !strings.Contains(name, "/") {
			continue
		}
		if v, ok := walk(record, strings.Split(name, "/")); ok {
			return v, true
		}
	}
	return Value{}, false
}

// ResolveText resolves field and renders it as trimmed text, falling back to
// def when the field is absent or blank.
func (r *Resolver) ResolveText(record Value, field, def string) (string, bool) {
	v, ok := r.Resolve(record, field)
	if !ok || v.IsBlank() {
		return def, false
	}
	return strings.TrimSpace(v.Text()), true
}

func walk(node Value, segments []string) (Value, bool) {
	cur := node
	for _, seg := range segments {
		next, ok := cur.Get(seg)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	if cur.IsNull() {
		return Value{}, false
	}
	return cur, true
}
