package telemetry

import (
	"math/rand"
	"sync"
	"time"

	"robot-gateway/internal/types"
)

// Cache хранит последний снимок телеметрии.
// Один мьютекс защищает и снимок, и генератор шума.
type Cache struct {
	mu    sync.Mutex
	state types.TelemetrySnapshot
	rng   *rand.Rand
}

// Option настройка кэша
type Option func(*Cache)

// WithSeed фиксирует seed генератора шума (для тестов)
func WithSeed(seed int64) Option {
	return func(c *Cache) {
		c.rng = rand.New(rand.NewSource(seed))
	}
}

// WithDefault задает снимок, который отдается до первого Set
func WithDefault(s types.TelemetrySnapshot) Option {
	return func(c *Cache) {
		c.state = s.Clone()
	}
}

// NewCache создает кэш со значениями по умолчанию
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		state: types.DefaultSnapshot(),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set атомарно заменяет сохраненный снимок
func (c *Cache) Set(s types.TelemetrySnapshot) {
	s = s.Clone()

	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Get возвращает копию снимка. С applyNoise копия зашумляется,
// сохраненное значение не меняется.
func (c *Cache) Get(applyNoise bool) types.TelemetrySnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.state.Clone()
	if !applyNoise {
		return out
	}

	out.BodyTemperature += c.rng.Float64()
	out.Voltage += c.rng.Float64()

	for i := range out.ActuatorStates {
		// шум в диапазоне [-0.5, 0.5), температура x10 для наглядности
		n := c.rng.Float64() - 0.5
		out.ActuatorStates[i].Effort += n
		out.ActuatorStates[i].Temperature += n * 10.0
	}

	return out
}
