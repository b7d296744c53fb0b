package todo

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// MaxDescriptionRunes caps the length of an extracted description.
const MaxDescriptionRunes = 300

var (
	jsonFenceRe  = regexp.MustCompile("(?s)```[ \\t]*(?:json|JSON)[ \\t]*\\r?\\n(.*?)```")
	headingRe    = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)
	listItemRe   = regexp.MustCompile(`^(\s*)(?:[-*+•]|\d{1,3}[.)])\s+(\[[ xX]\]\s*)?(.*)$`)
	todoPrefixRe = regexp.MustCompile(`(?i)^(?:todo|to-do|fixme|task|tâche|action item|amélioration|improvement)\s*#?\d*\s*[:\-–]\s*(.+)$`)
	sectionRe    = regexp.MustCompile(`(?i)^(?:\d+[.)]?\s*)?(?:[\p{L}]+\s+){0,2}(?:todos?|to-dos?|tasks?|action items?|next steps|recommendations?|improvements?|tâches?|améliorations?|actions?)(?:\s+[\p{L}]+)?\s*:?\s*$`)
	numberingRe  = regexp.MustCompile(`^\d+[.)]\s*`)

	priorityRe  = regexp.MustCompile(`(?i)(?:priority|priorité|priorite)[*_]*\s*[:=\-]?\s*[*_]*\s*(\p{L}+)`)
	effortRe    = regexp.MustCompile(`(?i)effort[*_]*\s*[:=\-]?\s*[*_]*\s*(\p{L}+)`)
	markerRe    = regexp.MustCompile(`(?i)(?:priority|priorité|priorite|effort)[*_]*\s*[:=]`)
	annParenRe  = regexp.MustCompile(`(?i)\s*[(\[][^()\[\]]*(?:priority|priorité|priorite|effort)[^()\[\]]*[)\]]`)
	annTailRe   = regexp.MustCompile(`(?i)\s*[-–—|,;]*\s*(?:priority|priorité|priorite|effort)\s*[:=].*$`)
	emphasisRep = strings.NewReplacer("**", "", "__", "")
)

// Extractor turns free-text stage output into Items. The zero value is ready
// to use; Now may be set to pin discovery timestamps in tests.
type Extractor struct {
	Now func() time.Time
}

// Extract parses text with a default Extractor.
func Extract(text, file, source string) []Item {
	return Extractor{}.Extract(text, file, source)
}

// Extract never fails: text it cannot interpret yields no items.
//
// A fenced json block holding a list of todos (or an object with a "todos"
// list) takes precedence. Otherwise the text is scanned line by line for
// TODO sections, TODO-prefixed headings and lines, and list items carrying a
// priority or effort marker.
func (e Extractor) Extract(text, file, source string) []Item {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	c := &collector{
		file:   file,
		source: source,
		ts:     now().Unix(),
		seen:   make(map[string]bool),
	}
	if items := c.fromJSONBlocks(text); len(items) > 0 {
		return items
	}
	return c.fromLines(text)
}

type draft struct {
	description string
	priority    Priority
	effort      Effort
}

type collector struct {
	file   string
	source string
	ts     int64
	seen   map[string]bool
}

func (c *collector) finish(drafts []draft) []Item {
	var items []Item
	for _, d := range drafts {
		if !hasWord(d.description) {
			continue
		}
		id := NewID(d.description, c.file, c.source)
		if c.seen[id] {
			continue
		}
		c.seen[id] = true
		if d.priority == "" {
			d.priority = PriorityMedium
		}
		if d.effort == "" {
			d.effort = EffortMedium
		}
		items = append(items, Item{
			ID:          id,
			Description: d.description,
			Priority:    d.priority,
			Effort:      d.effort,
			File:        c.file,
			Source:      c.source,
			Timestamp:   c.ts,
		})
	}
	return items
}

func (c *collector) fromJSONBlocks(text string) []Item {
	var drafts []draft
	for _, m := range jsonFenceRe.FindAllStringSubmatch(text, -1) {
		for _, raw := range todoObjects([]byte(m[1])) {
			d := draft{description: cleanDescription(firstString(raw, "description", "title", "task", "text", "todo"))}
			if p, ok := ParsePriority(fmt.Sprint(raw["priority"])); ok {
				d.priority = p
			}
			if ef, ok := ParseEffort(fmt.Sprint(raw["effort"])); ok {
				d.effort = ef
			}
			drafts = append(drafts, d)
		}
	}
	return c.finish(drafts)
}

// todoObjects accepts either a bare list or an object wrapping one.
func todoObjects(data []byte) []map[string]any {
	var list []map[string]any
	if err := json.Unmarshal(data, &list); err == nil {
		return list
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil
	}
	for _, key := range []string{"todos", "todo", "tasks", "items", "action_items"} {
		if raw, ok := wrapped[key]; ok {
			if err := json.Unmarshal(raw, &list); err == nil {
				return list
			}
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func (c *collector) fromLines(text string) []Item {
	var (
		drafts    []draft
		cur       = -1
		curIndent int
		inFence   bool
		inSection bool
	)

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, " \t\r")
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			cur = -1
			continue
		}
		if inFence || trimmed == "" {
			continue
		}

		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			cur = -1
			title := strings.TrimSpace(numberingRe.ReplaceAllString(emphasisRep.Replace(m[2]), ""))
			if pm := todoPrefixRe.FindStringSubmatch(title); pm != nil {
				inSection = false
				drafts = append(drafts, newDraft(pm[1], trimmed))
				cur, curIndent = len(drafts)-1, -1
				continue
			}
			inSection = sectionRe.MatchString(title)
			continue
		}

		if m := listItemRe.FindStringSubmatch(line); m != nil {
			indent := len(m[1])
			body := m[3]

			// A checked box is work already done.
			if strings.ContainsAny(m[2], "xX") {
				if cur < 0 || indent <= curIndent {
					cur = -1
				}
				continue
			}
			desc := cleanDescription(body)

			// Metadata-only bullets belong to the item above them.
			if desc == "" && markerRe.MatchString(body) {
				if cur >= 0 {
					applyMarkers(&drafts[cur], body)
				}
				continue
			}

			prefixed := todoPrefixRe.MatchString(strings.TrimSpace(emphasisRep.Replace(body)))
			nested := cur >= 0 && indent > curIndent
			if prefixed || markerRe.MatchString(body) || (inSection && !nested) {
				drafts = append(drafts, newDraft(body, body))
				cur, curIndent = len(drafts)-1, indent
				continue
			}
			if !nested {
				cur = -1
			}
			continue
		}

		if pm := todoPrefixRe.FindStringSubmatch(emphasisRep.Replace(trimmed)); pm != nil {
			drafts = append(drafts, newDraft(pm[1], trimmed))
			cur, curIndent = len(drafts)-1, len(line)-len(strings.TrimLeft(line, " \t"))
			continue
		}

		if cur >= 0 && markerRe.MatchString(trimmed) {
			applyMarkers(&drafts[cur], trimmed)
			continue
		}
		if cur >= 0 && curIndent >= 0 && len(line)-len(strings.TrimLeft(line, " \t")) > curIndent {
			continue
		}
		if curIndent != -1 {
			cur = -1
		}
	}

	return c.finish(drafts)
}

func hasWord(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

func newDraft(desc, markers string) draft {
	d := draft{description: cleanDescription(desc)}
	applyMarkers(&d, markers)
	return d
}

func applyMarkers(d *draft, s string) {
	plain := emphasisRep.Replace(s)
	if m := priorityRe.FindStringSubmatch(plain); m != nil {
		if p, ok := ParsePriority(m[1]); ok {
			d.priority = p
		}
	}
	if m := effortRe.FindStringSubmatch(plain); m != nil {
		if ef, ok := ParseEffort(m[1]); ok {
			d.effort = ef
		}
	}
}

func cleanDescription(s string) string {
	s = emphasisRep.Replace(s)
	s = strings.TrimSpace(s)
	if m := todoPrefixRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = annParenRe.ReplaceAllString(s, "")
	s = annTailRe.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, " :-–—|,;")
	if utf8.RuneCountInString(s) > MaxDescriptionRunes {
		s = string([]rune(s)[:MaxDescriptionRunes])
	}
	return strings.TrimSpace(s)
}
