package orgmode

import (
	"path/filepath"

	"github.com/harrisonrobin/timebox/pkg/model"
)

// Open reports whether the heading's keyword marks unfinished work.
func (h Heading) Open() bool {
	switch h.Keyword {
	case "TODO", "NEXT", "WAIT":
		return true
	}
	return false
}

// Drafts converts open headings with an effort estimate into backlog drafts.
func Drafts(headings []Heading) []model.Draft {
	var drafts []model.Draft
	for _, h := range headings {
		if !h.Open() || h.EffortMinutes <= 0 {
			continue
		}
		key := h.ID
		if key == "" {
			key = h.Title
		}
		drafts = append(drafts, model.Draft{
			Source:           "org:" + filepath.Base(h.Source) + "#" + key,
			Name:             h.Title,
			EstimatedMinutes: h.EffortMinutes,
		})
	}
	return drafts
}
