package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestAuthorization_OperatorOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(NewAuthorization("s3cret").OperatorOnly())
	router.GET("/runs/latest", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name         string
		header       string
		expectedCode int
	}{
		{name: "Missing header", expectedCode: http.StatusUnauthorized},
		{name: "Wrong scheme", header: "Telegram s3cret", expectedCode: http.StatusUnauthorized},
		{name: "Wrong token", header: "Bearer nope", expectedCode: http.StatusForbidden},
		{name: "Valid token", header: "Bearer s3cret", expectedCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/runs/latest", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedCode, w.Code)
		})
	}
}
