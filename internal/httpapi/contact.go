package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"termfolio/internal/contact"
)

// relayContact keeps the public contact endpoint's response shape:
// {error, details} on failure and {success, message, id} on success.
func (a *API) relayContact(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")

	switch c.Request.Method {
	case http.MethodOptions:
		c.Status(http.StatusOK)
		return
	case http.MethodPost:
	default:
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
		return
	}

	if a.contactLimiter != nil && !a.contactLimiter.Allow(c.ClientIP(), time.Now()) {
		logRejection(c, "contact", "rate_limited", "")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
		return
	}
	if !a.contact.Configured() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Email service not configured"})
		return
	}

	var msg contact.Message
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxContactBodyBytes)
	if err := c.ShouldBindJSON(&msg); err != nil && !errors.Is(err, io.EOF) {
		logRejection(c, "contact", "bad_json", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}

	id, err := a.contact.Send(c.Request.Context(), msg)
	var (
		verr *contact.ValidationError
		serr *contact.SendError
	)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Email sent successfully", "id": id})
	case errors.As(err, &verr):
		logRejection(c, "contact", "invalid_"+verr.Field, "")
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
	case errors.Is(err, contact.ErrNotConfigured):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Email service not configured"})
	case errors.As(err, &serr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send email", "details": serr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "details": err.Error()})
	}
}
