package models

// Role names a permission level carried in access tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents the user model in the database
type User struct {
	Base
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`
	Name     string `json:"name"`
	Role     Role   `gorm:"size:16;not null;default:'user'" json:"role"`

	Investments []Investment `gorm:"foreignKey:OwnerID" json:"investments,omitempty"`
}
