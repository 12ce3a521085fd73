// Package notifications renders and sends order emails.
package notifications

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/emberandwick/storefront-backend/pkg/db/models"
	"github.com/emberandwick/storefront-backend/pkg/logger"
	"github.com/emberandwick/storefront-backend/pkg/mailer"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	templateConfirmation = "order_confirmation.html"
	templateAdminOrder   = "admin_new_order.html"
	templateShipping     = "shipping_notification.html"
)

// Config carries store branding and the admin mailing list.
type Config struct {
	StoreName       string
	SiteURL         string
	AdminRecipients []string
}

// Dispatcher sends customer and admin emails about orders.
type Dispatcher struct {
	sender    mailer.Sender
	templates *template.Template
	cfg       Config
	logg      *logger.Logger
}

// NewDispatcher parses the embedded templates and wires the mail transport.
func NewDispatcher(sender mailer.Sender, cfg Config, logg *logger.Logger) (*Dispatcher, error) {
	if sender == nil {
		return nil, errors.New("mail sender required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	cfg.AdminRecipients = cleanRecipients(cfg.AdminRecipients)
	return &Dispatcher{sender: sender, templates: tmpl, cfg: cfg, logg: logg}, nil
}

// SendOrderConfirmation emails the customer their order confirmation.
func (d *Dispatcher) SendOrderConfirmation(ctx context.Context, order *models.Order) error {
	if order == nil {
		return errors.New("order required")
	}
	body, err := d.render(templateConfirmation, d.emailData(order))
	if err != nil {
		return err
	}
	return d.sender.Send(ctx, mailer.Message{
		To:       []string{order.Email},
		Subject:  fmt.Sprintf("Your %s order %s", d.cfg.StoreName, order.Reference),
		HTMLBody: body,
	})
}

// SendAdminOrderNotification tells the store admins about a new paid order.
// It is a no-op when no admin recipients are configured.
func (d *Dispatcher) SendAdminOrderNotification(ctx context.Context, order *models.Order) error {
	if order == nil {
		return errors.New("order required")
	}
	if len(d.cfg.AdminRecipients) == 0 {
		d.logg.Debug(ctx, "no admin recipients configured; admin order email skipped")
		return nil
	}
	data := d.emailData(order)
	body, err := d.render(templateAdminOrder, data)
	if err != nil {
		return err
	}
	return d.sender.Send(ctx, mailer.Message{
		To:       d.cfg.AdminRecipients,
		Subject:  fmt.Sprintf("New order %s (%s)", order.Reference, data.Total),
		HTMLBody: body,
	})
}

// SendShippingNotification tells the customer their parcel has been handed
// to the carrier.
func (d *Dispatcher) SendShippingNotification(ctx context.Context, order *models.Order) error {
	if order == nil {
		return errors.New("order required")
	}
	if order.Shipment == nil {
		return errors.New("order has no shipment")
	}
	body, err := d.render(templateShipping, d.emailData(order))
	if err != nil {
		return err
	}
	return d.sender.Send(ctx, mailer.Message{
		To:       []string{order.Email},
		Subject:  fmt.Sprintf("Your %s order %s has shipped", d.cfg.StoreName, order.Reference),
		HTMLBody: body,
	})
}

func (d *Dispatcher) render(name string, data emailData) (string, error) {
	var buf bytes.Buffer
	if err := d.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

type emailItem struct {
	Title     string
	Quantity  int
	UnitPrice string
	LineTotal string
}

type emailData struct {
	StoreName         string
	SiteURL           string
	Reference         string
	Email             string
	FullName          string
	AddressLine1      string
	AddressLine2      string
	City              string
	PostalCode        string
	Country           string
	Items             []emailItem
	ItemCount         int
	Subtotal          string
	DeliveryFee       string
	Total             string
	Carrier           string
	TrackingNumber    string
	EstimatedDelivery string
}

func (d *Dispatcher) emailData(order *models.Order) emailData {
	data := emailData{
		StoreName:    d.cfg.StoreName,
		SiteURL:      d.cfg.SiteURL,
		Reference:    order.Reference,
		Email:        order.Email,
		FullName:     order.FullName,
		AddressLine1: order.AddressLine1,
		AddressLine2: order.AddressLine2,
		City:         order.City,
		PostalCode:   order.PostalCode,
		Country:      order.Country,
		ItemCount:    order.ItemCount(),
		Subtotal:     money(order.Subtotal.StringFixed(2)),
		DeliveryFee:  money(order.DeliveryFee.StringFixed(2)),
		Total:        money(order.Total.StringFixed(2)),
	}
	for _, item := range order.Items {
		data.Items = append(data.Items, emailItem{
			Title:     item.ProductTitle,
			Quantity:  item.Quantity,
			UnitPrice: money(item.UnitPrice.StringFixed(2)),
			LineTotal: money(item.LineTotal().StringFixed(2)),
		})
	}
	if s := order.Shipment; s != nil {
		data.Carrier = s.Carrier
		data.TrackingNumber = s.TrackingNumber
		if s.EstimatedDelivery != nil {
			data.EstimatedDelivery = s.EstimatedDelivery.Format("Monday 2 January")
		}
	}
	return data
}

func money(amount string) string {
	return "£" + amount
}

func cleanRecipients(in []string) []string {
	out := make([]string, 0, len(in))
	for _, addr := range in {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
