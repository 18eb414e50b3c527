package service

import "errors"

var (
	// ErrInvalidState действие недопустимо в текущем состоянии смены
	ErrInvalidState = errors.New("action is not allowed in the current session state")
	// ErrLocationUnavailable нет разрешения на геолокацию или координаты не получены вовремя
	ErrLocationUnavailable = errors.New("location is unavailable, check location permission in settings")
	// ErrReconciliationConflict сервер закрыл смену, пока клиент считал ее открытой.
	// Разрешается молча в пользу сервера, пользователю не показывается.
	ErrReconciliationConflict = errors.New("session already closed by server")
	// ErrNoUser пользователь не вошел в систему
	ErrNoUser = errors.New("user is not logged in")
)
