package render

import (
	"context"

	"github.com/straye-as/invoice-api/internal/invoice"
)

// CSS pixels per PDF point at 96 dpi.
const pxPerPoint = 96.0 / 72.0

// MetricsMeasurer estimates the invoice geometry from core font metrics
// instead of a browser. It backs server-side layout when no client has
// reported measured heights.
type MetricsMeasurer struct {
	PagePaddingBottom float64
}

// NewMetricsMeasurer returns a measurer matching the stylesheet's page padding.
func NewMetricsMeasurer() *MetricsMeasurer {
	return &MetricsMeasurer{PagePaddingBottom: 60}
}

// Measure implements invoice.Measurer.
func (m *MetricsMeasurer) Measure(ctx context.Context, doc *invoice.Document) (invoice.Geometry, error) {
	if err := ctx.Err(); err != nil {
		return invoice.Geometry{}, err
	}
	d := newPDFDoc(doc)

	heights := make([]float64, len(doc.Rows))
	for i, row := range doc.Rows {
		heights[i] = d.rowHeight(row) * pxPerPoint
	}
	top := pdfMarginTop + d.headerHeight() + d.introHeight() + pdfTableHeadHeight

	return invoice.Geometry{
		RowHeights:        heights,
		StaticTop:         top * pxPerPoint,
		StaticBottom:      d.trailingHeight() * pxPerPoint,
		PagePaddingBottom: m.PagePaddingBottom,
	}, nil
}
