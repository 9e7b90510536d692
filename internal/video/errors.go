package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

var (
	// ErrNoTaskID - провайдер принял задачу, но не вернул ее идентификатор
	ErrNoTaskID = errors.New("Failed to get task ID")
	// ErrTaskFailed - провайдер сообщил, что задача завершилась ошибкой
	ErrTaskFailed = errors.New("Video generation task failed")
	// ErrPollTimeout - задача не дошла до конечного статуса за отведенное число опросов
	ErrPollTimeout = errors.New("Video generation timeout, please check in the background later")
)

// ProviderError - ответ провайдера с неуспешным HTTP статусом.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("video API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("video API returned status %d: %s", e.StatusCode, e.Message)
}

// isRetryable сообщает, можно ли продолжать опрос после ошибки получения статуса.
// Повторяются: задача еще не видна (404), таймауты и обрывы соединения.
// Отмена родительского контекста повтором не считается.
func isRetryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}

	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.StatusCode == http.StatusNotFound
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "timeout")
}
