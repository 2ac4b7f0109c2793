package notify

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/orders"
)

var confirmationHTML = template.Must(template.New("confirmation").Parse(`<p>Bonjour {{.ClientName}},</p>
<p>Votre commande <strong>{{.OrderID}}</strong> est confirmée.</p>
<ul>{{range .Items}}<li>{{.Quantity}} × {{.Name}}</li>{{end}}</ul>
<p>{{if eq .Mode "DELIVERY"}}Livraison{{else}}À emporter{{end}} le {{.Date}} à {{.Time}}.</p>
<p>Total : {{.Total}} €</p>`))

func confirmationMessage(ev orders.OrderConfirmedEvent) (Message, error) {
	var html strings.Builder
	if err := confirmationHTML.Execute(&html, ev); err != nil {
		return Message{}, fmt.Errorf("render confirmation: %w", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Bonjour %s,\n\nVotre commande %s est confirmée.\n\n", ev.ClientName, ev.OrderID)
	for _, l := range ev.Items {
		fmt.Fprintf(&text, "- %d x %s\n", l.Quantity, l.Name)
	}
	fmt.Fprintf(&text, "\n%s le %s à %s.\nTotal : %s €\n", modeLabel(ev.Mode), ev.Date, ev.Time, ev.Total)

	return Message{
		To:      ev.ClientEmail,
		Subject: "Le Trois Quarts : confirmation de commande",
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

func modeLabel(mode string) string {
	if mode == "DELIVERY" {
		return "Livraison"
	}
	return "À emporter"
}
