// Package bus provides the pub/sub transport pulse publishes notifications,
// operator alerts and cycle records on.
//
// # Available Implementations
//
//   - NATSBus: core NATS, shares its connection with the NATS state store
//   - MemoryBus: in-process channels for tests and single-binary setups
//
// # Subjects
//
//	pulse.notify  user-facing check notifications
//	pulse.alert   breaker trips and failed cycles
//	pulse.cycle   one record per completed cycle
//
// Consumers (a chat bridge, a dashboard) subscribe to these subjects:
//
//	sub, _ := b.Subscribe(bus.SubjectAlert)
//	for msg := range sub.Messages() {
//	    // decode notify.Alert from msg.Data
//	}
package bus
