package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/storefront/api/internal/services"
)

const metricNamespace = "github.com/storefront/api/internal/platform/mail"

const orderConfirmationTemplate = `<h2>Thank you for your order, {{.Recipient}}!</h2>
<p>Order {{.OrderID}}</p>
<table style="width: 100%; border-collapse: collapse; text-align: left;">
  <thead>
    <tr>
      <th style="padding: 8px; border: 1px solid #ddd;">Image</th>
      <th style="padding: 8px; border: 1px solid #ddd;">Name</th>
      <th style="padding: 8px; border: 1px solid #ddd;">Quantity</th>
      <th style="padding: 8px; border: 1px solid #ddd;">Price</th>
    </tr>
  </thead>
  <tbody>
{{- range .Items}}
    <tr>
      <td style="padding: 8px; border: 1px solid #ddd;">{{if .Image}}<img src="{{.Image}}" alt="{{.Name}}" style="width: 100px; height: auto;"/>{{end}}</td>
      <td style="padding: 8px; border: 1px solid #ddd;">{{.Name}}</td>
      <td style="padding: 8px; border: 1px solid #ddd;">{{.Quantity}}</td>
      <td style="padding: 8px; border: 1px solid #ddd;">{{money .Subtotal}}</td>
    </tr>
{{- end}}
  </tbody>
</table>
<p><strong>Items Price:</strong> {{money .Pricing.ItemsPrice}}</p>
<p><strong>Tax:</strong> {{money .Pricing.TaxPrice}}</p>
<p><strong>Shipping:</strong> {{money .Pricing.ShippingPrice}}</p>
<p><strong>Total:</strong> {{money .Pricing.TotalPrice}}</p>
<p><strong>Shipping Address:</strong></p>
<p>{{.Shipping.Address}}, {{.Shipping.City}}, {{.Shipping.State}}, {{.Shipping.Country}} - {{.Shipping.PostalCode}}</p>
<p><strong>Phone:</strong> {{.Shipping.Phone}}</p>
<p>Thank you for shopping with {{.StoreName}}!</p>
`

// OrderConfirmationNotifier renders the order confirmation email and hands it to a Sender.
type OrderConfirmationNotifier struct {
	sender    Sender
	storeName string
	unit      currency.Unit
	printer   *message.Printer
	tmpl      *template.Template
	logger    *zap.Logger
	failures  metric.Int64Counter
}

// NotifierOption customises OrderConfirmationNotifier.
type NotifierOption func(*OrderConfirmationNotifier)

// WithStoreName sets the shop name shown in the subject and footer.
func WithStoreName(name string) NotifierOption {
	return func(n *OrderConfirmationNotifier) {
		if name = strings.TrimSpace(name); name != "" {
			n.storeName = name
		}
	}
}

// WithLanguage selects the locale used for amount formatting.
func WithLanguage(tag language.Tag) NotifierOption {
	return func(n *OrderConfirmationNotifier) {
		n.printer = message.NewPrinter(tag)
	}
}

// WithNotifierLogger sets the logger used for delivery diagnostics.
func WithNotifierLogger(logger *zap.Logger) NotifierOption {
	return func(n *OrderConfirmationNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithNotifierMeter injects a custom OpenTelemetry meter.
func WithNotifierMeter(meter metric.Meter) NotifierOption {
	return func(n *OrderConfirmationNotifier) {
		if meter != nil {
			n.failures = newFailureCounter(meter, n.logger)
		}
	}
}

// NewOrderConfirmationNotifier constructs a notifier formatting amounts in currencyCode.
func NewOrderConfirmationNotifier(sender Sender, currencyCode string, opts ...NotifierOption) (*OrderConfirmationNotifier, error) {
	if sender == nil {
		return nil, errors.New("mail: sender is required")
	}
	unit, err := currency.ParseISO(strings.TrimSpace(currencyCode))
	if err != nil {
		return nil, fmt.Errorf("mail: invalid currency %q: %w", currencyCode, err)
	}

	n := &OrderConfirmationNotifier{
		sender:    sender,
		storeName: "our store",
		unit:      unit,
		printer:   message.NewPrinter(language.English),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	if n.failures == nil {
		n.failures = newFailureCounter(otel.GetMeterProvider().Meter(metricNamespace), n.logger)
	}

	n.tmpl, err = template.New("order_confirmation").Funcs(template.FuncMap{
		"money": n.formatMoney,
	}).Parse(orderConfirmationTemplate)
	if err != nil {
		return nil, fmt.Errorf("mail: parse order confirmation template: %w", err)
	}
	return n, nil
}

type confirmationView struct {
	Recipient string
	OrderID   string
	StoreName string
	Items     []confirmationItem
	Pricing   services.PricingBreakdown
	Shipping  services.ShippingInfo
}

type confirmationItem struct {
	Name     string
	Image    string
	Quantity int
	Subtotal decimal.Decimal
}

// Render produces the confirmation email for the order without sending it.
func (n *OrderConfirmationNotifier) Render(order services.Order) (Message, error) {
	view := confirmationView{
		Recipient: order.UserEmail,
		OrderID:   order.ID,
		StoreName: n.storeName,
		Pricing:   order.Pricing,
		Shipping:  order.ShippingInfo,
		Items:     make([]confirmationItem, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, confirmationItem{
			Name:     item.Name,
			Image:    item.Image,
			Quantity: item.Quantity,
			Subtotal: item.Subtotal(),
		})
	}

	var body bytes.Buffer
	if err := n.tmpl.Execute(&body, view); err != nil {
		return Message{}, fmt.Errorf("mail: render order confirmation: %w", err)
	}
	return Message{
		To:       order.UserEmail,
		Subject:  fmt.Sprintf("Order Confirmation - %s", n.storeName),
		HTMLBody: body.String(),
	}, nil
}

// NotifyOrderCreated implements services.OrderNotifier.
func (n *OrderConfirmationNotifier) NotifyOrderCreated(ctx context.Context, order services.Order) error {
	if strings.TrimSpace(order.UserEmail) == "" {
		return errors.New("mail: order has no recipient email")
	}
	msg, err := n.Render(order)
	if err != nil {
		n.recordFailure(ctx, "render")
		return err
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		n.recordFailure(ctx, "send")
		n.logger.Warn("mail: order confirmation not delivered",
			zap.String("orderID", order.ID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (n *OrderConfirmationNotifier) formatMoney(amount decimal.Decimal) string {
	return n.printer.Sprintf("%v %v", currency.Symbol(n.unit), number.Decimal(amount.Round(2).InexactFloat64(), number.Scale(2)))
}

func (n *OrderConfirmationNotifier) recordFailure(ctx context.Context, stage string) {
	if n.failures == nil {
		return
	}
	n.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func newFailureCounter(meter metric.Meter, logger *zap.Logger) metric.Int64Counter {
	counter, err := meter.Int64Counter(
		"orders.notification.failures",
		metric.WithDescription("Count of order confirmation emails that could not be delivered"),
	)
	if err != nil {
		if logger != nil {
			logger.Warn("mail: unable to register failure metric", zap.Error(err))
		}
		return nil
	}
	return counter
}
