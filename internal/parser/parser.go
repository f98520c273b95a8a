// Package parser converts Markdown text to and from the structured document
// model: YAML frontmatter to properties, the body to typed blocks, checklist
// lines to items with inline task annotations.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/starford/laguz/internal/models"
)

var (
	checklistRe = regexp.MustCompile(`^\s*[-*]\s+\[([ xX])\]\s+(.*)$`)
	headingRe   = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	tagRe       = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	dueRe       = regexp.MustCompile(`(?:^|\s)due:(\d{4}-\d{2}-\d{2})(?:\s|$)`)
	schedRe     = regexp.MustCompile(`(?:^|\s)sched:(\d{4}-\d{2}-\d{2})(?:\s|$)`)
	prioRe      = regexp.MustCompile(`(?:^|\s)!(low|med|high)(?:\s|$)`)
	nextRe      = regexp.MustCompile(`(?:^|\s)@next(?:\s|$)`)
)

// Result holds the parsed content of a Markdown file.
type Result struct {
	Title  string
	Tags   []string
	Props  models.Properties
	Blocks []models.Block
}

// Parse converts raw Markdown bytes into structured content. Frontmatter is
// optional; invalid YAML degrades to treating the whole input as body.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Title: deriveTitle(fm, body),
		Tags:  extractTags(body, fm),
		Props: extractProps(fm),
	}
	res.Blocks = parseBlocks(body)
	return res, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter, treat everything as body.
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML degrades to body-only.
		return nil, string(data), nil
	}

	return fm, body, nil
}

// parseBlocks walks the body line by line: headings become heading blocks,
// consecutive checklist lines group into a single checklist block, everything
// else accumulates into paragraph blocks separated by blank lines.
func parseBlocks(body string) []models.Block {
	var (
		blocks  []models.Block
		para    []string
		items   []models.ListItem
		counter = map[string]int{}
	)

	flushPara := func() {
		if len(para) == 0 {
			return
		}
		text := strings.Join(para, "\n")
		blocks = append(blocks, models.Block{
			ID:   blockID(models.BlockParagraph, text, counter),
			Kind: models.BlockParagraph,
			Text: text,
		})
		para = nil
	}
	flushItems := func() {
		if len(items) == 0 {
			return
		}
		var joined []string
		for _, it := range items {
			joined = append(joined, it.Text)
		}
		text := strings.Join(joined, "\n")
		blocks = append(blocks, models.Block{
			ID:    blockID(models.BlockChecklist, text, counter),
			Kind:  models.BlockChecklist,
			Text:  text,
			Items: items,
		})
		items = nil
	}

	for _, line := range strings.Split(body, "\n") {
		if m := checklistRe.FindStringSubmatch(line); m != nil {
			flushPara()
			items = append(items, parseItem(m[2], m[1] != " ", counter))
			continue
		}
		flushItems()

		if m := headingRe.FindStringSubmatch(line); m != nil {
			flushPara()
			text := strings.TrimSpace(m[2])
			blocks = append(blocks, models.Block{
				ID:   blockID(models.BlockHeading, text, counter),
				Kind: models.BlockHeading,
				Text: text,
			})
			continue
		}

		if strings.TrimSpace(line) == "" {
			flushPara()
			continue
		}
		para = append(para, line)
	}
	flushItems()
	flushPara()
	return blocks
}

// parseItem strips the task annotations from a checklist line and records
// them on the item: !low|!med|!high priority, due:YYYY-MM-DD, sched:YYYY-MM-DD
// and the @next marker.
func parseItem(text string, checked bool, counter map[string]int) models.ListItem {
	item := models.ListItem{Checked: checked}

	if m := prioRe.FindStringSubmatch(text); m != nil {
		item.Priority = models.Priority(m[1])
		text = prioRe.ReplaceAllString(text, " ")
	}
	if m := dueRe.FindStringSubmatch(text); m != nil {
		if models.ValidDay(m[1]) {
			item.DueDay = m[1]
		}
		text = dueRe.ReplaceAllString(text, " ")
	}
	if m := schedRe.FindStringSubmatch(text); m != nil {
		if models.ValidDay(m[1]) {
			item.ScheduledDay = m[1]
		}
		text = schedRe.ReplaceAllString(text, " ")
	}
	if nextRe.MatchString(text) {
		item.NextAction = true
		text = nextRe.ReplaceAllString(text, " ")
	}

	item.Text = strings.Join(strings.Fields(text), " ")
	item.ID = blockID("item", item.Text, counter)
	return item
}

// blockID derives a stable id from the block kind and text. A per-document
// occurrence counter disambiguates repeated identical lines so ids stay
// unique within one parse while remaining deterministic across parses.
func blockID(kind models.BlockKind, text string, counter map[string]int) string {
	key := string(kind) + "\x00" + text
	n := counter[key]
	counter[key] = n + 1
	return fmt.Sprintf("b%012x", xxhash.Sum64String(fmt.Sprintf("%s\x00%d", key, n))&0xffffffffffff)
}

// extractTags collects #tags from body and from frontmatter "tags" field.
func extractTags(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string

	if fm != nil {
		if raw, ok := fm["tags"]; ok {
			switch v := raw.(type) {
			case []interface{}:
				for _, item := range v {
					if s, ok := item.(string); ok {
						s = strings.TrimSpace(s)
						if s != "" {
							if _, dup := seen[s]; !dup {
								seen[s] = struct{}{}
								out = append(out, s)
							}
						}
					}
				}
			}
		}
	}

	matches := tagRe.FindAllStringSubmatch(body, -1)
	for _, m := range matches {
		t := m[1]
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}

	return out
}

// extractProps maps recognised frontmatter keys onto typed properties and
// keeps the rest in Extra. Normalize drops values that fail validation.
func extractProps(fm map[string]interface{}) models.Properties {
	var p models.Properties
	if fm == nil {
		return p
	}
	for k, raw := range fm {
		switch k {
		case "title", "tags":
			// Handled separately.
		case "status":
			if s, ok := raw.(string); ok {
				p.Status = models.Status(s)
			}
		case "priority":
			if s, ok := raw.(string); ok {
				p.Priority = models.Priority(s)
			}
		case "due":
			p.Due = dayString(raw)
		case "scheduled":
			p.Scheduled = dayString(raw)
		case "favorite":
			if b, ok := raw.(bool); ok {
				p.Favorite = b
			}
		default:
			if s, ok := raw.(string); ok {
				if p.Extra == nil {
					p.Extra = map[string]string{}
				}
				p.Extra[k] = s
			}
		}
	}
	return p.Normalize()
}

// dayString accepts both quoted YYYY-MM-DD strings and the time.Time values
// the YAML decoder produces for bare date scalars.
func dayString(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case time.Time:
		return v.Format("2006-01-02")
	}
	return ""
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if fm != nil {
		if t, ok := fm["title"]; ok {
			if s, ok := t.(string); ok && s != "" {
				return s
			}
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// Render writes a document back out as Markdown with YAML frontmatter. The
// inverse of Parse up to whitespace: annotations are re-emitted on checklist
// lines so a round trip preserves task data.
func Render(doc *models.Document) []byte {
	var b strings.Builder

	b.WriteString("---\n")
	b.WriteString("title: " + yamlScalar(doc.Title) + "\n")
	if len(doc.Tags) > 0 {
		b.WriteString("tags:\n")
		for _, t := range doc.Tags {
			b.WriteString("  - " + yamlScalar(t) + "\n")
		}
	}
	if doc.Props.Status != "" {
		b.WriteString("status: " + string(doc.Props.Status) + "\n")
	}
	if doc.Props.Priority != "" {
		b.WriteString("priority: " + string(doc.Props.Priority) + "\n")
	}
	if doc.Props.Due != "" {
		b.WriteString("due: " + doc.Props.Due + "\n")
	}
	if doc.Props.Scheduled != "" {
		b.WriteString("scheduled: " + doc.Props.Scheduled + "\n")
	}
	if doc.Props.Favorite {
		b.WriteString("favorite: true\n")
	}
	if len(doc.Props.Extra) > 0 {
		keys := make([]string, 0, len(doc.Props.Extra))
		for k := range doc.Props.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(k + ": " + yamlScalar(doc.Props.Extra[k]) + "\n")
		}
	}
	b.WriteString("---\n\n")

	for i, blk := range doc.Blocks {
		if i > 0 {
			b.WriteString("\n")
		}
		switch blk.Kind {
		case models.BlockHeading:
			b.WriteString("## " + blk.Text + "\n")
		case models.BlockChecklist:
			for _, it := range blk.Items {
				b.WriteString(renderItem(it) + "\n")
			}
		default:
			b.WriteString(blk.Text + "\n")
		}
	}
	return []byte(b.String())
}

func renderItem(it models.ListItem) string {
	mark := " "
	if it.Checked {
		mark = "x"
	}
	line := "- [" + mark + "] " + it.Text
	if it.Priority != "" {
		line += " !" + string(it.Priority)
	}
	if it.DueDay != "" {
		line += " due:" + it.DueDay
	}
	if it.ScheduledDay != "" {
		line += " sched:" + it.ScheduledDay
	}
	if it.NextAction {
		line += " @next"
	}
	return line
}

func yamlScalar(s string) string {
	if strings.ContainsAny(s, ":#{}[]\"'") || strings.TrimSpace(s) != s || s == "" {
		out, err := yaml.Marshal(s)
		if err == nil {
			return strings.TrimRight(string(out), "\n")
		}
	}
	return s
}
