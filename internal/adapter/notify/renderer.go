package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

// Message is a rendered order confirmation. It is what travels over the
// notification topic.
type Message struct {
	OrderID string `json:"order_id"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

const textBody = `Thank you for your order!

Order {{.Order.ID}}
Status: {{.Order.Status}}
{{range .Order.Lines}}
  {{.ProductID}}  x{{.Quantity}}  @ {{money .UnitPrice}}  = {{money .Subtotal}}{{end}}

Total: {{money .Order.TotalAmount}}
{{with .Order.ShippingAddress}}Ships to: {{.}}
{{end}}`

const htmlBody = `<h1>Thank you for your order!</h1>
<p>Order <strong>{{.Order.ID}}</strong> is {{.Order.Status}}.</p>
<table>
<tr><th>Product</th><th>Qty</th><th>Unit price</th><th>Subtotal</th></tr>
{{range .Order.Lines}}<tr><td>{{.ProductID}}</td><td>{{.Quantity}}</td><td>{{money .UnitPrice}}</td><td>{{money .Subtotal}}</td></tr>
{{end}}</table>
<p>Total: <strong>{{money .Order.TotalAmount}}</strong></p>
{{with .Order.ShippingAddress}}<p>Ships to: {{.}}</p>{{end}}`

func money(d decimal.Decimal) string { return d.StringFixed(2) }

type Renderer struct {
	text *template.Template
	html *htmltemplate.Template
}

func NewRenderer() *Renderer {
	return &Renderer{
		text: template.Must(template.New("text").Funcs(template.FuncMap{"money": money}).Parse(textBody)),
		html: htmltemplate.Must(htmltemplate.New("html").Funcs(htmltemplate.FuncMap{"money": money}).Parse(htmlBody)),
	}
}

// Render builds the confirmation from the order snapshot, so the prices shown
// are the frozen line prices.
func (r *Renderer) Render(email string, order domain.Order) (Message, error) {
	data := struct{ Order domain.Order }{order}

	var text, html bytes.Buffer
	if err := r.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render text: %w", err)
	}
	if err := r.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}

	return Message{
		OrderID: order.ID,
		To:      email,
		Subject: fmt.Sprintf("Order confirmation %s", order.ID),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
