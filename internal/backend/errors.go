package backend

import (
	"errors"
	"fmt"
)

// RejectionError сервер ответил status:false; Message показывается пользователю как есть
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string {
	if e.Message == "" {
		return "request rejected by server"
	}
	return e.Message
}

// NetworkError запрос не дошел до сервера или ответ не удалось разобрать
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: server responded with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsRejection проверяет, что ошибка - отказ сервера
func IsRejection(err error) bool {
	var rejection *RejectionError
	return errors.As(err, &rejection)
}

// IsNetwork проверяет, что ошибка сетевая и запрос можно повторить
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
