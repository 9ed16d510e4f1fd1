package notify

import (
	"fmt"

	"workshop-service/internal/model"
)

// QuoteEmail builds the message sent to a client when a quote is
// dispatched, embedding the one-time approve and reject links.
func QuoteEmail(quote *model.Quote, clientName, clientEmail, approveURL, rejectURL string) Message {
	body := fmt.Sprintf(`<p>Hola %s,</p>
<p>Le enviamos el presupuesto #%d para su %s %s (%d), patente %s.</p>
<p><b>Trabajo propuesto:</b> %s</p>
<p><b>Costo estimado:</b> $%.2f</p>
<p>El presupuesto es v&aacute;lido hasta el %s.</p>
<p>
  <a href="%s">Aprobar presupuesto</a> &nbsp;|&nbsp;
  <a href="%s">Rechazar presupuesto</a>
</p>`,
		clientName,
		quote.Number,
		quote.Vehicle.Brand, quote.Vehicle.Model, quote.Vehicle.Year, quote.Vehicle.Plate,
		quote.ProposedWork,
		quote.EstimatedCost,
		quote.ValidUntil.Format("02/01/2006"),
		approveURL,
		rejectURL,
	)

	return Message{
		To:      clientEmail,
		Subject: fmt.Sprintf("Presupuesto #%d - Taller", quote.Number),
		HTML:    body,
	}
}

// ReadyEmail builds the "vehicle ready for pickup" message.
func ReadyEmail(order *model.WorkOrder, clientName, clientEmail string) Message {
	body := fmt.Sprintf(`<p>Hola %s,</p>
<p>Su %s %s, patente %s, est&aacute; listo para retirar (orden #%d).</p>
<p>Lo esperamos en el taller.</p>`,
		clientName,
		order.Vehicle.Brand, order.Vehicle.Model, order.Vehicle.Plate,
		order.Number,
	)

	return Message{
		To:      clientEmail,
		Subject: fmt.Sprintf("Su vehículo está listo - Orden #%d", order.Number),
		HTML:    body,
	}
}
