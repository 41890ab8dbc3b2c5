package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/repository"
)

// ErrorHandler обрабатывает ошибки централизованно.
// Маскирует внутренние ошибки и возвращает понятные сообщения клиенту.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Проверяем, не был ли уже отправлен ответ
		if c.Writer.Written() {
			return
		}

		if len(c.Errors) > 0 {
			err := c.Errors.Last()

			if logger.Log != nil {
				logger.Log.WithFields(logrus.Fields{
					"error":  err.Error(),
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
				}).Error("Request error")
			}

			statusCode := http.StatusInternalServerError
			message := "внутренняя ошибка сервера"

			var appErr *apperror.AppError
			switch {
			case errors.As(err.Err, &appErr):
				statusCode = appErr.HTTPStatus
				message = appErr.Message
			case errors.Is(err.Err, repository.ErrEscrowNotFound):
				statusCode = http.StatusNotFound
				message = "escrow не найден"
			case errors.Is(err.Err, repository.ErrDisputeNotFound):
				statusCode = http.StatusNotFound
				message = "спор не найден"
			case errors.Is(err.Err, repository.ErrPayoutAccountNotFound):
				statusCode = http.StatusNotFound
				message = "счёт для выплат не найден"
			case errors.Is(err.Err, repository.ErrNotificationNotFound):
				statusCode = http.StatusNotFound
				message = "уведомление не найдено"
			}

			c.JSON(statusCode, gin.H{"error": message})
		}
	}
}
