package retry

import (
	"errors"
	"math"
	"time"
)

// Policy параметры повторных попыток
type Policy struct {
	MaxRetries        int           // 0 - без повторов
	InitialDelay      time.Duration // задержка перед первым повтором
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// NetworkErrorPolicy политика для сетевых ошибок: больше попыток, короче задержки
func NetworkErrorPolicy() Policy {
	return Policy{
		MaxRetries:        5,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Delay экспоненциальная задержка для номера повтора, ограниченная MaxDelay
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return p.InitialDelay
	}

	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(retryCount))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}

	return time.Duration(delay)
}

// ShouldRetry можно ли сделать еще одну попытку
func (p Policy) ShouldRetry(retryCount int) bool {
	return retryCount < p.MaxRetries
}

func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("MaxRetries must be non-negative")
	}
	if p.InitialDelay <= 0 {
		return errors.New("InitialDelay must be positive")
	}
	if p.MaxDelay <= 0 {
		return errors.New("MaxDelay must be positive")
	}
	if p.BackoffMultiplier <= 0 {
		return errors.New("BackoffMultiplier must be positive")
	}
	if p.InitialDelay > p.MaxDelay {
		return errors.New("InitialDelay cannot be greater than MaxDelay")
	}
	return nil
}
