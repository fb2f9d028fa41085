package users

import (
	"strings"
	"time"
)

// Org is the tenant owning pinboards and boards.
type Org struct {
	OrgID     string    `gorm:"column:org_id;primaryKey;size:190;not null"`
	Name      string    `gorm:"column:name;size:320;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing organisations.
func (Org) TableName() string {
	return "orgs"
}

// OrgMember maps an auth-provider user to an organisation.
type OrgMember struct {
	OrgID         string    `gorm:"column:org_id;primaryKey;size:190;not null"`
	UserID        string    `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_org_members_user"`
	Email         string    `gorm:"column:email;size:320"`
	EmailVerified bool      `gorm:"column:email_verified;not null;default:false"`
	Role          string    `gorm:"column:role;size:32;not null;default:'owner'"`
	LastSeenAt    time.Time `gorm:"column:last_seen_at;autoUpdateTime"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing organisation memberships.
func (OrgMember) TableName() string {
	return "org_members"
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
