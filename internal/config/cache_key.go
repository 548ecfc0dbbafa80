package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// MonitorChannel is the Redis PubSub channel every session publishes its
// audit events to.
func (r *CacheKeyStruct) MonitorChannel() string {
	return "proctor:monitor"
}

// StartAttemptsKey returns the rate limit counter for session starts from ip.
func (r *CacheKeyStruct) StartAttemptsKey(ip string) string {
	return fmt.Sprintf("ratelimit:start:%s", ip)
}

// AdminLoginAttemptsKey returns the rate limit counter for admin logins from ip.
func (r *CacheKeyStruct) AdminLoginAttemptsKey(ip string) string {
	return fmt.Sprintf("ratelimit:admin_login:%s", ip)
}

var CacheKey = NewCacheKeyStruct()
