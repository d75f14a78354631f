package license

import "time"

func SetEngineClock(e *Engine, now func() time.Time) { e.now = now }

func SetManagerClock(m *Manager, now func() time.Time) { m.now = now }

func SetKeyGenerator(m *Manager, gen func(string) (string, error)) { m.newKey = gen }
