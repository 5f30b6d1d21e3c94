package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/safar/go-bookstore/internal/models"
)

var itemizedTemplate = template.Must(template.New("itemized").Parse(`<table>
<thead><tr><th>Title</th><th>Qty</th><th>Unit price</th><th>Line total</th></tr></thead>
<tbody>
{{- range .Items}}
<tr><td>{{.Title}}</td><td>{{.Quantity}}</td><td>${{.UnitPrice.StringFixed 2}}</td><td>${{.LineTotal.StringFixed 2}}</td></tr>
{{- end}}
</tbody>
</table>
<p>Subtotal: ${{.Subtotal.StringFixed 2}}</p>
{{- if .DiscountDescription}}
<p>Discount: {{.DiscountDescription}}</p>
{{- end}}
<p>Total: ${{.TotalAmount.StringFixed 2}}</p>
<p>Claim code: <strong>{{.ClaimCode}}</strong></p>
`))

// RenderItemized renders the order lines and totals as an HTML fragment
// for the confirmation message. Titles are escaped.
func RenderItemized(order *models.Order) (string, error) {
	var buf bytes.Buffer
	if err := itemizedTemplate.Execute(&buf, order); err != nil {
		return "", fmt.Errorf("render itemized order: %w", err)
	}
	return buf.String(), nil
}
