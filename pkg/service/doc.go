// Package service wires the relay together.
//
// RelayService owns one TLS listener, one dispatch queue with its device
// writer, and the registry of live sessions:
//
//	client ──TLS──▶ Server ──▶ session ──Enqueue──▶ Queue ──▶ Writer ──▶ device
//	                              │
//	                              └──── "acknowledge-" / "error-" ──▶ client
//
// Each accepted connection gets its own session goroutine. A session
// reads one frame, splits it into a command, formats the checksummed
// device line, hands it to the queue and answers the client. Sessions
// share nothing except the registry and the queue.
//
// Example usage:
//
//	dev, _ := device.OpenSerial(device.SerialConfig{Port: "/dev/ttyACM0"})
//	config := service.DefaultServiceConfig()
//	config.TLS = &transport.TLSConfig{Certificate: cert}
//
//	svc, err := service.NewRelayService(dev, config)
//	svc.Start(ctx)
//	defer svc.Stop()
package service
