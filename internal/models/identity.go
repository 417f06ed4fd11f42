package models

// DefaultUser is the bucket unauthenticated callers are attributed to.
const DefaultUser = "no_user"

// Profile classifies what a caller is allowed to see.
type Profile string

const (
	ProfileUser         Profile = "user"
	ProfileManager      Profile = "manager"
	ProfileUnauthorized Profile = "unauthorized"
)

// User is the identity carried by the X-Username / X-Roles headers.
type User struct {
	Username string
	Roles    []string
}

// Role binds a quota and a profile to a role name in the service config.
type Role struct {
	Quota   int     `yaml:"quota" validate:"gte=0"`
	Profile Profile `yaml:"profile" validate:"oneof=user manager unauthorized"`
}
