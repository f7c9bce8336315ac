package notify

// Channel is a redis pub/sub channel carrying outbound facts for
// dashboard and persistence collaborators.
type Channel string

const (
	SessionFactsChannel Channel = "proctor:facts:sessions"
	AlertFactsChannel   Channel = "proctor:facts:alerts"
	BanFactsChannel     Channel = "proctor:facts:bans"
)
