package descriptions

import "sort"

// Tool descriptions with practical examples and use cases

const (
	// Layout tools
	BulletinFingerprintDescription = `Compute the layout fingerprint of a bulletin PDF.

**When to use:** Need to know whether two bulletins share a layout, or want the fingerprint to store with a new template.

**Why it's useful:** The fingerprint hashes where the first hundred text runs sit on the page, so weekly bulletins printed from the same design produce the same or nearly the same value.

**Examples:**
• Check a new upload: "Fingerprint bulletins/2025-06-07.pdf"
• Compare two weeks: fingerprint both files, then compare the values with bulletin_match

**Best practices:** Paths are relative to the configured directory. The result also reports page and text run counts, which help spot scanned PDFs (zero runs).`

	BulletinMatchDescription = `Find the stored template whose layout best matches a bulletin PDF.

**When to use:** A new weekly bulletin arrives and you want to know which template (if any) it was made from.

**Why it's useful:** Scores the bulletin's fingerprint against every template of the church and reports the best one when it reaches the match threshold (0.7 by default), otherwise the best confidence seen.

**Examples:**
• "Which template does bulletins/june-14.pdf use for church st-marks?"

**Common workflows:**
1. bulletin_match → template found → bulletin_extract_fields with its fields
2. bulletin_match → no template → draw fields and create one through the HTTP API`

	BulletinExtractFieldsDescription = `Read the text inside field rectangles of a bulletin PDF.

**When to use:** You have field definitions (from a template or drawn by hand) and want their current values.

**Why it's useful:** A text run belongs to a field when its center falls inside the rectangle. Runs are joined in reading order.

**Parameters:** fields_json is a JSON array of {"id","x","y","width","height","page"} in canvas coordinates (origin top-left). Width and height default to 80 and 15.

**Best practices:** When the PDF cannot be read or a field points at a missing page, every field comes back empty and the reason is reported.`

	BulletinTextAtDescription = `Find the text run closest to a point on a page.

**When to use:** Exploring a layout before drawing fields, or checking what text sits at a known position.

**Parameters:** x and y are PDF coordinates (origin bottom-left, points). tolerance defaults to 10 points on each axis.`

	BulletinGenerateDescription = `Write values onto a bulletin PDF and save the result.

**When to use:** Field values changed and a print-ready PDF is needed.

**Why it's useful:** Values are stamped in Helvetica at the field's top-left, sized to 80% of the field height and never above font_size (12 by default). Blank values are skipped.

**Parameters:** fields_json as for bulletin_extract_fields; values_json maps field IDs to text; output is the path of the new PDF inside the configured directory.`

	TemplateListDescription = `List the templates stored for a church, newest first.

**When to use:** Before matching or extracting, to see which layouts and fields a church already has.`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	"bulletin_fingerprint":    BulletinFingerprintDescription,
	"bulletin_match":          BulletinMatchDescription,
	"bulletin_extract_fields": BulletinExtractFieldsDescription,
	"bulletin_text_at":        BulletinTextAtDescription,
	"bulletin_generate":       BulletinGenerateDescription,
	"template_list":           TemplateListDescription,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns the names of all tools in sorted order
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
