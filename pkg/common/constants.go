package common

import "time"

const (
	SessionCacheTTL = 5 * time.Minute
	BanCacheTTL     = 1 * time.Minute

	ClientEnvironmentHeader = "X-Proctor-Client"
)
