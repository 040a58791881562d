package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes payload with status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// OK writes a 200 reply, transcript or usage view.
func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}

// Created writes a 201 for a new session or stored upload.
func Created(c *gin.Context, payload any) {
	JSON(c, http.StatusCreated, payload)
}
