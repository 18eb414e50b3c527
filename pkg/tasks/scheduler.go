package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MinInterval нижняя граница периода фоновых задач
const MinInterval = 15 * time.Minute

// Func тело фоновой задачи
type Func func(ctx context.Context) error

type definition struct {
	interval time.Duration
	fn       Func
}

// Scheduler периодические фоновые задачи по имени: задача объявляется один раз,
// а затем регистрируется и снимается по мере надобности.
type Scheduler struct {
	mu          sync.Mutex
	defs        map[string]definition
	running     map[string]context.CancelFunc
	minInterval time.Duration
	wg          sync.WaitGroup
	baseCtx     context.Context
	logger      *logrus.Logger
}

func NewScheduler(ctx context.Context, minInterval time.Duration) *Scheduler {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return &Scheduler{
		defs:        make(map[string]definition),
		running:     make(map[string]context.CancelFunc),
		minInterval: minInterval,
		baseCtx:     ctx,
		logger:      logger,
	}
}

// Define объявляет задачу; период меньше минимального поднимается до минимума
func (s *Scheduler) Define(name string, interval time.Duration, fn Func) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if interval < s.minInterval {
		interval = s.minInterval
	}
	s.defs[name] = definition{interval: interval, fn: fn}

	s.logger.WithFields(logrus.Fields{
		"task":     name,
		"interval": interval.String(),
	}).Debug("Task defined")
}

// Register запускает задачу; повторная регистрация ничего не делает
func (s *Scheduler) Register(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.defs[name]
	if !ok {
		return fmt.Errorf("task %q is not defined", name)
	}
	if _, ok := s.running[name]; ok {
		s.logger.WithField("task", name).Debug("Task already registered")
		return nil
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.running[name] = cancel

	s.wg.Add(1)
	go s.loop(ctx, name, def)

	s.logger.WithFields(logrus.Fields{
		"task":     name,
		"interval": def.interval.String(),
	}).Info("Task registered")

	return nil
}

// Unregister останавливает задачу; можно вызывать из самой задачи
func (s *Scheduler) Unregister(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, ok := s.running[name]
	if !ok {
		s.logger.WithField("task", name).Debug("Task not registered, nothing to unregister")
		return nil
	}

	cancel()
	delete(s.running, name)
	s.logger.WithField("task", name).Info("Task unregistered")
	return nil
}

func (s *Scheduler) IsRegistered(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[name]
	return ok
}

// RunNow выполняет объявленную задачу один раз в текущей горутине
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	def, ok := s.defs[name]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("task %q is not defined", name)
	}
	return def.fn(ctx)
}

// Stop снимает все задачи и ждет их завершения
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for name, cancel := range s.running {
		cancel()
		delete(s.running, name)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, name string, def definition) {
	defer s.wg.Done()

	ticker := time.NewTicker(def.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if err := def.fn(ctx); err != nil {
				s.logger.WithError(err).WithField("task", name).Error("Task run failed")
			}
		}
	}
}
