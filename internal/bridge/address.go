package bridge

import "strings"

// ResolveURL substitutes the virtual session id into the address template.
// "{id}" and "{user_id}" are replaced; a template without a placeholder
// gets "/ws/<id>" appended, or "/<id>" when it already ends in "/ws".
func ResolveURL(template, id string) string {
	if strings.Contains(template, "{id}") || strings.Contains(template, "{user_id}") {
		return strings.NewReplacer("{id}", id, "{user_id}", id).Replace(template)
	}

	base := strings.TrimRight(template, "/")
	if strings.HasSuffix(base, "/ws") {
		return base + "/" + id
	}
	return base + "/ws/" + id
}
