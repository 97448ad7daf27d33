package response

// Health is the body of GET /health
type Health struct {
	Status        string  `json:"status"`
	Connections   int     `json:"connections"`
	Lobbies       int     `json:"lobbies"`
	Games         int     `json:"games"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}
