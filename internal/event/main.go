package event

import "sync"

// MainEventbusName is the name of the process-wide default bus.
const MainEventbusName = "mainEventbus"

var (
	mainOnce sync.Once
	mainBus  *Bus
)

// Main returns the process-wide default bus, creating it on first use. It
// lives for the life of the process; nothing in the bus itself depends on it.
func Main() *Bus {
	mainOnce.Do(func() {
		mainBus = NewBus(WithName(MainEventbusName))
	})
	return mainBus
}
