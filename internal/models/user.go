package models

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

type AuthProvider string

const (
	AuthProviderLocal  AuthProvider = "local"
	AuthProviderLDAP   AuthProvider = "ldap"
	AuthProviderGoogle AuthProvider = "google"
)

type User struct {
	BaseModel
	Username     string       `gorm:"type:varchar(100);uniqueIndex;not null"`
	FullName     string       `gorm:"type:varchar(200);not null"`
	PhoneNo      *string      `gorm:"type:varchar(40)"`
	Email        *string      `gorm:"type:varchar(255);uniqueIndex"`
	PasswordHash string       `gorm:"type:text;not null"`
	Role         UserRole     `gorm:"type:varchar(20);not null;default:'user'"`
	AuthProvider AuthProvider `gorm:"type:varchar(20);not null;default:'local'"`
	ExternalID   *string      `gorm:"type:varchar(255);index"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
