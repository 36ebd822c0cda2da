package invoice

import "context"

// FixedMeasurer is a deterministic Measurer that assigns one height per row
// kind, with optional per-row overrides.
type FixedMeasurer struct {
	GroupHeight  float64
	ItemHeight   float64
	StaticTop    float64
	StaticBottom float64
	Overrides    map[int]float64
}

// Measure implements Measurer.
func (m FixedMeasurer) Measure(_ context.Context, doc *Document) (Geometry, error) {
	heights := make([]float64, len(doc.Rows))
	for i, r := range doc.Rows {
		if h, ok := m.Overrides[i]; ok {
			heights[i] = h
			continue
		}
		if r.IsGroup() {
			heights[i] = m.GroupHeight
		} else {
			heights[i] = m.ItemHeight
		}
	}
	return Geometry{
		RowHeights:   heights,
		StaticTop:    m.StaticTop,
		StaticBottom: m.StaticBottom,
	}, nil
}
