package messaging

// HealthStatus is the broker section of the readiness report.
type HealthStatus struct {
	Connected bool    `json:"connected"`
	LatencyMS float64 `json:"latency_ms,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// CheckClientHealth reports whether client is connected and, if so, its round trip.
func CheckClientHealth(client Client) HealthStatus {
	if client == nil {
		return HealthStatus{Error: "no broker configured"}
	}
	if !client.IsConnected() {
		return HealthStatus{Error: "not connected to message broker"}
	}

	rtt, err := client.RTT()
	if err != nil {
		return HealthStatus{Connected: true, Error: "round trip failed: " + err.Error()}
	}
	return HealthStatus{Connected: true, LatencyMS: float64(rtt.Microseconds()) / 1000}
}
