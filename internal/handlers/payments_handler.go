package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/payments"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

func (a *api) registerPayments(g *gin.RouterGroup) {
	g.POST("/create-preference", a.createPreference)
	g.POST("/webhook", a.paymentWebhook)
	g.GET("/status/:paymentId", a.paymentStatus)
}

func (a *api) createPreference(c *gin.Context) {
	var req validation.CreatePreferenceRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	body := req.Preference()
	body.Defaults(a.FrontendURL, a.BackendURL)

	pref, err := a.Gateway.CreatePreference(c.Request.Context(), body)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "preferenceId": pref.ID, "initPoint": pref.InitPoint})
}

// paymentWebhook queues payment notifications for the worker and
// acknowledges everything else. The gateway retries on non-2xx, so a failed
// enqueue is reported as 500.
func (a *api) paymentWebhook(c *gin.Context) {
	var n payments.Notification
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&n); err != nil {
			badRequest(c, "invalid notification body")
			return
		}
	}
	// older IPN deliveries carry the topic and id in the query string
	if n.Type == "" {
		n.Type = c.DefaultQuery("type", c.Query("topic"))
	}
	if n.Data.ID == "" {
		n.Data.ID = payments.FlexibleID(c.DefaultQuery("data.id", c.Query("id")))
	}

	if n.Type != "payment" || n.Data.ID == "" {
		log.Printf("[payments] ignoring notification type=%q", n.Type)
		c.String(http.StatusOK, "OK")
		return
	}

	msg := payments.PaymentMessage{
		PaymentID:     string(n.Data.ID),
		Type:          n.Type,
		CorrelationID: c.GetHeader("X-Request-Id"),
	}
	attrs := map[string]string{
		"payment_id":     msg.PaymentID,
		"correlation_id": msg.CorrelationID,
	}
	if err := a.Queue.Send(c.Request.Context(), msg, attrs); err != nil {
		log.Printf("[payments] enqueue payment %s: %v", msg.PaymentID, err)
		c.String(http.StatusInternalServerError, "Error")
		return
	}
	c.String(http.StatusOK, "OK")
}

func (a *api) paymentStatus(c *gin.Context) {
	p, err := a.Gateway.GetPayment(c.Request.Context(), c.Param("paymentId"))
	if err != nil {
		fail(c, err)
		return
	}
	info := p.Raw
	if len(info) == 0 {
		info, _ = json.Marshal(p)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"status":       p.Status,
		"statusDetail": p.StatusDetail,
		"paymentInfo":  info,
	})
}
