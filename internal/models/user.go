package models

import "time"

// QuotaCounters are a user's request counts for the current quota period.
type QuotaCounters struct {
	Movies    int       `json:"movies"`
	TVShows   int       `json:"tvShows"`
	LastReset time.Time `json:"lastReset"`
}

// User is an account that may request media. Identities maps a platform
// name ("sms", "discord", ...) to the raw id on that platform.
type User struct {
	ID                   string            `gorm:"primaryKey;size:64" json:"id"`
	Name                 string            `gorm:"size:128" json:"name"`
	Admin                bool              `gorm:"default:false" json:"admin"`
	Identities           map[string]string `gorm:"serializer:json" json:"identities"`
	Counters             QuotaCounters     `gorm:"embedded;embeddedPrefix:quota_" json:"counters"`
	NotificationsEnabled bool              `gorm:"not null" json:"notificationsEnabled"`
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Identities != nil {
		c.Identities = make(map[string]string, len(u.Identities))
		for k, v := range u.Identities {
			c.Identities[k] = v
		}
	}
	return &c
}
