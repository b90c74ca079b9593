package email

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderItem is one order line as shown in an email.
type OrderItem struct {
	OrderID   int64
	ProductID int64
	Name      string
	Quantity  int
	Price     decimal.Decimal
}

func (i OrderItem) subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

const layout = `<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #2e7d32; padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">%s</h1>
	</div>
	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		%s
		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">
		<p style="font-size: 12px; color: #999; margin-bottom: 0;">This is an automated message from your grocery delivery service.</p>
	</div>
</body>
</html>`

// BuildOrderConfirmationBody lists the placed lines and their total.
func BuildOrderConfirmationBody(items []OrderItem) string {
	var rows strings.Builder
	total := decimal.Zero
	for _, item := range items {
		name := item.Name
		if name == "" {
			name = fmt.Sprintf("Product #%d", item.ProductID)
		}
		fmt.Fprintf(&rows, `<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">#%d</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">%d</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
			</tr>`,
			item.OrderID, html.EscapeString(name), item.Quantity, formatMoney(item.Price), formatMoney(item.subtotal()))
		total = total.Add(item.subtotal())
	}

	content := fmt.Sprintf(`<p style="margin-top: 0;">Thank you for your order. We are getting it ready.</p>
		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left;">Order</th>
					<th style="padding: 12px; text-align: left;">Product</th>
					<th style="padding: 12px; text-align: center;">Qty</th>
					<th style="padding: 12px; text-align: right;">Unit price</th>
					<th style="padding: 12px; text-align: right;">Subtotal</th>
				</tr>
			</thead>
			<tbody>
				%s
			</tbody>
		</table>
		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
			<span style="font-size: 14px; color: #666;">Total</span>
			<span style="font-size: 24px; font-weight: bold; color: #2e7d32; margin-left: 10px;">%s</span>
		</div>`, rows.String(), formatMoney(total))

	return fmt.Sprintf(layout, "Thank you for your order", content)
}

// BuildOutForDeliveryBody names the orders that just left for delivery.
func BuildOutForDeliveryBody(orderIDs []int64) string {
	refs := make([]string, len(orderIDs))
	for i, id := range orderIDs {
		refs[i] = fmt.Sprintf("#%d", id)
	}
	content := fmt.Sprintf(`<p style="margin-top: 0;">Good news! The following orders are now in transit:</p>
		<p style="font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>`, strings.Join(refs, ", "))
	return fmt.Sprintf(layout, "Your groceries are on their way", content)
}

func formatMoney(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
