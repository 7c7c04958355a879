package labeltable

import "sort"

// Color is an RGBA color table entry, index-aligned with the object entries.
type Color [4]uint8

// Alpha levels used by the highlight operations.  Dimmed labels stay visible
// under the grayscale; highlighted labels are opaque.
const (
	DimAlpha       uint8 = 64
	HighlightAlpha uint8 = 255
)

// BackgroundColor is the reserved, fully transparent color at index 0.
var BackgroundColor = Color{0, 0, 0, 0}

// defaultPalette seeds colors for entries created by a grid import, cycling
// hues so adjacent indexes contrast.
var defaultPalette = []Color{
	{230, 25, 75, DimAlpha},
	{60, 180, 75, DimAlpha},
	{255, 225, 25, DimAlpha},
	{0, 130, 200, DimAlpha},
	{245, 130, 48, DimAlpha},
	{145, 30, 180, DimAlpha},
	{70, 240, 240, DimAlpha},
	{240, 50, 230, DimAlpha},
	{210, 245, 60, DimAlpha},
	{250, 190, 190, DimAlpha},
	{0, 128, 128, DimAlpha},
	{170, 110, 40, DimAlpha},
}

// DefaultColor returns the palette color for a label index.
func DefaultColor(idx LabelIndex) Color {
	if idx == Background {
		return BackgroundColor
	}
	return defaultPalette[int(idx-1)%len(defaultPalette)]
}

// Color returns the color table entry for a label index.
func (t *Table) Color(idx LabelIndex) (Color, bool) {
	if int(idx) >= len(t.colors) {
		return Color{}, false
	}
	return t.colors[idx], true
}

// Colors returns a copy of the color table.
func (t *Table) Colors() []Color {
	colors := make([]Color, len(t.colors))
	copy(colors, t.colors)
	return colors
}

// SwapColors installs a color table snapshot and returns the one it
// replaces.  Undo and redo use this to exchange the live table with the
// snapshot carried by an action record.
func (t *Table) SwapColors(colors []Color) []Color {
	old := t.colors
	t.colors = colors
	return old
}

// Highlight makes a label opaque and adds it to the selected set.  The
// background entry is never highlighted.
func (t *Table) Highlight(idx LabelIndex) {
	if idx == Background || int(idx) >= len(t.colors) {
		return
	}
	t.colors[idx][3] = HighlightAlpha
	t.selected[idx] = struct{}{}
}

// Dim restores a label to the standard translucent alpha and removes it from
// the selected set.
func (t *Table) Dim(idx LabelIndex) {
	if idx == Background || int(idx) >= len(t.colors) {
		return
	}
	t.colors[idx][3] = DimAlpha
	delete(t.selected, idx)
}

// HighlightExclusive dims every label and then highlights just the given one.
func (t *Table) HighlightExclusive(idx LabelIndex) {
	t.DimAll()
	t.Highlight(idx)
}

// DimAll dims every non-background label and clears the selected set.
func (t *Table) DimAll() {
	for i := 1; i < len(t.colors); i++ {
		t.colors[i][3] = DimAlpha
	}
	t.selected = make(map[LabelIndex]struct{})
}

// IsSelected reports whether a label is in the selected set.
func (t *Table) IsSelected(idx LabelIndex) bool {
	_, found := t.selected[idx]
	return found
}

// Selected returns the selected label indexes in ascending order.
func (t *Table) Selected() []LabelIndex {
	selected := make([]LabelIndex, 0, len(t.selected))
	for idx := range t.selected {
		selected = append(selected, idx)
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i] < selected[j] })
	return selected
}

// SelectedSet returns a copy of the selected set keyed by label index.
func (t *Table) SelectedSet() map[LabelIndex]struct{} {
	selected := make(map[LabelIndex]struct{}, len(t.selected))
	for idx := range t.selected {
		selected[idx] = struct{}{}
	}
	return selected
}

// SwapSelected installs a selected-set snapshot and returns the one it
// replaces.
func (t *Table) SwapSelected(selected map[LabelIndex]struct{}) map[LabelIndex]struct{} {
	old := t.selected
	if selected == nil {
		selected = make(map[LabelIndex]struct{})
	}
	t.selected = selected
	return old
}
