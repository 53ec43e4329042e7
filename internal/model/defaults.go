package model

import "time"

// Gateway defaults.
const (
	DefaultSearchSize    = 50
	DefaultMaxSearchSize = 10000
	DefaultMaxBodyBytes  = 10 << 20
	DefaultQueryTimeout  = 30 * time.Second
	DefaultGatewayPort   = 3001
)
