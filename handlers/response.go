package handlers

import (
	"github.com/gin-gonic/gin"
)

// respondError writes the {success:false, error, message?} envelope.
func respondError(c *gin.Context, status int, errMsg, message string) {
	body := gin.H{"success": false, "error": errMsg}
	if message != "" {
		body["message"] = message
	}
	c.JSON(status, body)
}

// respondData writes the {success:true, data} envelope.
func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// respondOK writes {success:true, message}.
func respondOK(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": true, "message": message})
}
