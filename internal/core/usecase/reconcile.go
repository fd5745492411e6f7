package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
	"github.com/kirillkom/comment-labeler/internal/core/structured"
)

// reconcile maps recovered reply items back to pending row identifiers.
// Items with unknown identifiers are ignored. The last item for an identifier
// wins; when that item carries no label or one outside the set, the row is
// left to the fallback.
func reconcile(items []structured.Object, field string, resolver *Resolver, pending map[string]struct{}) map[string]domain.Label {
	out := make(map[string]domain.Label, len(pending))
	for _, item := range items {
		rawID, ok := lookupField(item, "id")
		if !ok || rawID == nil {
			continue
		}
		id := strings.TrimSpace(fmt.Sprint(rawID))
		if _, known := pending[id]; !known {
			continue
		}
		rawLabel, ok := lookupField(item, field)
		if !ok {
			delete(out, id)
			continue
		}
		label, ok := resolver.Normalize(rawLabel)
		if !ok {
			delete(out, id)
			continue
		}
		out[id] = label
	}
	return out
}

func lookupField(item structured.Object, name string) (any, bool) {
	if v, ok := item[name]; ok {
		return v, true
	}
	for key, v := range item {
		if strings.EqualFold(strings.TrimSpace(key), name) {
			return v, true
		}
	}
	return nil, false
}
