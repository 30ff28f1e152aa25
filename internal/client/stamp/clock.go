// Package stamp ведёт счётчик отчётов телефона.
//
// Сервер отбрасывает отчёт, stamp которого меньше сохранённого, поэтому
// телефон должен выдавать монотонно растущие значения даже после
// перезапуска и после того, как сервер сам назначил stamp.
package stamp

import "sync"

// Clock логические часы Лампорта для отчётов одного телефона
type Clock struct {
	counter int64
	mu      sync.Mutex
}

// New создает часы с сохранённым значением счетчика
func New(counter int64) *Clock {
	if counter < 0 {
		counter = 0
	}
	return &Clock{counter: counter}
}

// Tick увеличивает счетчик и возвращает stamp для нового отчёта
func (c *Clock) Tick() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counter++
	return c.counter
}

// Observe учитывает stamp, принятый сервером.
// Счетчик никогда не уменьшается.
func (c *Clock) Observe(remote int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remote > c.counter {
		c.counter = remote
	}
	return c.counter
}

// Value возвращает текущее значение без изменения
func (c *Clock) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.counter
}
