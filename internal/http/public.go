package http

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"workshop-service/internal/model"
	"workshop-service/internal/repository"
)

// The public pages are what the client sees after clicking an email link.
// They carry no session and no sensitive data beyond the outcome itself.
var outcomePage = template.Must(template.New("outcome").Parse(`<!DOCTYPE html>
<html lang="es">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; background: #f4f4f4; margin: 0; }
    .card { max-width: 480px; margin: 80px auto; background: #fff; border-radius: 8px;
            padding: 32px; text-align: center; box-shadow: 0 2px 8px rgba(0,0,0,.1); }
    h1 { font-size: 22px; color: {{.Color}}; }
    p { color: #444; }
  </style>
</head>
<body>
  <div class="card">
    <h1>{{.Title}}</h1>
    <p>{{.Message}}</p>
  </div>
</body>
</html>`))

type outcomeView struct {
	Title   string
	Message string
	Color   string
}

func (h *Handler) redeemApprove(c *gin.Context) {
	h.redeemToken(c, model.TokenActionApprove)
}

func (h *Handler) redeemReject(c *gin.Context) {
	h.redeemToken(c, model.TokenActionReject)
}

func (h *Handler) redeemToken(c *gin.Context, action model.TokenAction) {
	quoteID := strings.TrimSpace(c.Param("id"))
	token := strings.TrimSpace(c.Param("token"))

	usage := repository.TokenUsage{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}

	quote, order, err := h.quoteService.RedeemToken(c.Request.Context(), quoteID, token, action, usage)
	if err != nil {
		h.renderOutcome(c, redemptionFailureView(err))
		return
	}

	view := outcomeView{
		Title:   "Presupuesto rechazado",
		Message: fmt.Sprintf("Ha rechazado el presupuesto Nº %d. Gracias por avisarnos.", quote.Number),
		Color:   "#b71c1c",
	}
	if action == model.TokenActionApprove {
		view = outcomeView{
			Title: "Presupuesto aprobado",
			Message: fmt.Sprintf("Ha aprobado el presupuesto Nº %d. Se generó la orden de trabajo Nº %d; nos pondremos en contacto para coordinar la entrega del vehículo.",
				quote.Number, order.Number),
			Color: "#1b5e20",
		}
	}
	h.renderOutcome(c, view)
}

func redemptionFailureView(err error) outcomeView {
	switch {
	case errors.Is(err, model.ErrTokenUsed):
		return outcomeView{
			Title:   "Enlace ya utilizado",
			Message: "Este enlace ya fue utilizado. Si tiene dudas sobre el estado de su presupuesto, comuníquese con el taller.",
			Color:   "#e65100",
		}
	case errors.Is(err, model.ErrQuoteExpired):
		return outcomeView{
			Title:   "Presupuesto vencido",
			Message: "El presupuesto venció y ya no puede aprobarse por este medio. Comuníquese con el taller para solicitar uno nuevo.",
			Color:   "#e65100",
		}
	case errors.Is(err, model.ErrQuoteProcessed):
		return outcomeView{
			Title:   "Presupuesto ya procesado",
			Message: "Este presupuesto ya fue aprobado o rechazado anteriormente.",
			Color:   "#e65100",
		}
	default:
		// Unknown tokens and unknown quotes get the same page; the link
		// reveals nothing about what exists.
		return outcomeView{
			Title:   "Enlace no válido",
			Message: "El enlace no es válido. Verifique que copió la dirección completa del correo.",
			Color:   "#b71c1c",
		}
	}
}

func (h *Handler) renderOutcome(c *gin.Context, view outcomeView) {
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := outcomePage.Execute(c.Writer, view); err != nil {
		h.log.Error().Err(err).Msg("failed to render outcome page")
	}
}
