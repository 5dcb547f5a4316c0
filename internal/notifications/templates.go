package notifications

import (
	"fmt"
	"html"
	"strings"

	"github.com/angelmondragon/giftflow-backend/pkg/mailer"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox/payloads"
)

func greeting(ref payloads.OrderRef) string {
	name := strings.TrimSpace(ref.CustomerName)
	if name == "" {
		return "Hi there,"
	}
	return fmt.Sprintf("Hi %s,", strings.Fields(name)[0])
}

func amount(ref payloads.OrderRef) string {
	return fmt.Sprintf("%s %s", ref.TotalAmount.StringFixed(2), strings.ToUpper(ref.Currency))
}

func orderConfirmation(ref payloads.OrderRef) mailer.Message {
	text := fmt.Sprintf("%s\n\nYour gift order %s is on its way to the retailer. We will email you again when it ships.\n",
		greeting(ref), ref.OrderNumber)
	return mailer.Message{
		To:         ref.CustomerEmail,
		ToName:     ref.CustomerName,
		Subject:    fmt.Sprintf("Order %s confirmed", ref.OrderNumber),
		PlainText:  text,
		HTML:       paragraphs(text),
		Categories: []string{"order_confirmation"},
	}
}

func orderReceipt(ref payloads.OrderRef) mailer.Message {
	text := fmt.Sprintf("%s\n\nReceipt for order %s.\nTotal charged: %s\n", greeting(ref), ref.OrderNumber, amount(ref))
	return mailer.Message{
		To:         ref.CustomerEmail,
		ToName:     ref.CustomerName,
		Subject:    fmt.Sprintf("Receipt for order %s", ref.OrderNumber),
		PlainText:  text,
		HTML:       paragraphs(text),
		Categories: []string{"order_receipt"},
	}
}

func scheduledNotice(event payloads.OrderScheduledEvent) mailer.Message {
	text := fmt.Sprintf("%s\n\nYour gift order %s is scheduled for delivery on %s. We will place it with the retailer on %s.\n",
		greeting(event.OrderRef), event.OrderNumber, event.ScheduledDeliveryDate, event.ProcessingDate)
	return mailer.Message{
		To:         event.CustomerEmail,
		ToName:     event.CustomerName,
		Subject:    fmt.Sprintf("Order %s scheduled for %s", event.OrderNumber, event.ScheduledDeliveryDate),
		PlainText:  text,
		HTML:       paragraphs(text),
		Categories: []string{"order_scheduled"},
	}
}

func paragraphs(text string) string {
	var b strings.Builder
	for _, block := range strings.Split(strings.TrimSpace(text), "\n\n") {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(block), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}
