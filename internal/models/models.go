package models

import "time"

type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Username     string `gorm:"size:16;uniqueIndex;not null" json:"username"`
	PasswordHash string `gorm:"not null" json:"-"`
	IsAdmin      bool   `gorm:"not null" json:"is_admin"`
	// AdminSlot is true for the admin and NULL for everyone else; its unique
	// index lets storage admit a single admin.
	AdminSlot *bool     `gorm:"uniqueIndex" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetAdmin keeps IsAdmin and AdminSlot consistent.
func (u *User) SetAdmin(admin bool) {
	u.IsAdmin = admin
	if admin {
		slot := true
		u.AdminSlot = &slot
		return
	}
	u.AdminSlot = nil
}

type Device struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_devices_user_name,priority:1" json:"user_id"`
	Name      string    `gorm:"size:255;not null;uniqueIndex:idx_devices_user_name,priority:2" json:"name"`
	Icon      *string   `gorm:"size:255" json:"icon"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Location is a single geolocation sample reported for a device.
// CreatedAt is assigned by the server and orders samples.
type Location struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	DeviceID         uint      `gorm:"not null;index:idx_locations_device_time,priority:1" json:"device_id"`
	Latitude         float64   `gorm:"not null" json:"latitude"`
	Longitude        float64   `gorm:"not null" json:"longitude"`
	Accuracy         *float64  `json:"accuracy"`
	Altitude         *float64  `json:"altitude"`
	AltitudeAccuracy *float64  `json:"altitude_accuracy"`
	Battery          *float64  `json:"battery"`
	Speed            *float64  `json:"speed"`
	Heading          *float64  `json:"heading"`
	CreatedAt        time.Time `gorm:"not null;index:idx_locations_device_time,priority:2" json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// Device exists for the foreign key only and is never loaded.
	Device *Device `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Token is a personal access token. Only the SHA-256 of the bearer value is stored.
type Token struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"not null;index" json:"-"`
	Name       string     `gorm:"size:255;not null" json:"name"`
	TokenHash  string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	LastUsedAt *time.Time `json:"last_used_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"size:255;uniqueIndex;not null" json:"key"`
	Value     string    `gorm:"size:255;not null" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SettingRegistration gates self-registration once an admin exists.
const SettingRegistration = "registration"
