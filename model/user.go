package model

import (
	"time"

	"gorm.io/datatypes"
)

// User is an account plus its matrimonial profile.
// Status: 0=banned 1=normal.
type User struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"uniqueIndex;size:32;not null" json:"username"`
	PasswordHash string     `gorm:"size:64;not null" json:"-"`
	Email        string     `gorm:"size:128" json:"email"`
	Status       int        `gorm:"default:1" json:"status"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	LastLoginIP  string     `gorm:"size:45" json:"last_login_ip"`

	// Profile fields shown on listings and profile pages.
	DisplayName       string         `gorm:"size:64" json:"display_name"`
	Gender            string         `gorm:"size:8;index:idx_user_browse" json:"gender"` // male | female
	BirthYear         int            `gorm:"index:idx_user_browse" json:"birth_year"`
	Location          string         `gorm:"size:128" json:"location"`
	Occupation        string         `gorm:"size:128" json:"occupation"`
	Education         string         `gorm:"size:128" json:"education"`
	ReligiousPractice string         `gorm:"size:128" json:"religious_practice"`
	Madhab            string         `gorm:"size:32" json:"madhab"`
	Languages         datatypes.JSON `json:"languages"` // ["English","Arabic"]
	AboutMe           string         `gorm:"type:text" json:"about_me"`
	LookingFor        string         `gorm:"type:text" json:"looking_for"`
	PhotoURL          string         `gorm:"size:255" json:"photo_url"`
	ProfileCompleted  bool           `gorm:"default:false" json:"profile_completed"`
}

// Age returns the user's age in whole years as of now.
// Zero birth year means the profile has not filled it in.
func (u *User) Age(now time.Time) int {
	if u.BirthYear == 0 {
		return 0
	}
	return now.Year() - u.BirthYear
}

// PublicProfile is the view of a user exposed to other members.
// Contact and account fields are withheld.
type PublicProfile struct {
	ID                int64          `json:"id"`
	DisplayName       string         `json:"display_name"`
	Gender            string         `json:"gender"`
	Age               int            `json:"age"`
	Location          string         `json:"location"`
	Occupation        string         `json:"occupation"`
	Education         string         `json:"education"`
	ReligiousPractice string         `json:"religious_practice"`
	Madhab            string         `json:"madhab"`
	Languages         datatypes.JSON `json:"languages"`
	AboutMe           string         `json:"about_me"`
	LookingFor        string         `json:"looking_for"`
	PhotoURL          string         `json:"photo_url"`
}

// Public projects the user into its member-visible form.
func (u *User) Public(now time.Time) PublicProfile {
	return PublicProfile{
		ID:                u.ID,
		DisplayName:       u.DisplayName,
		Gender:            u.Gender,
		Age:               u.Age(now),
		Location:          u.Location,
		Occupation:        u.Occupation,
		Education:         u.Education,
		ReligiousPractice: u.ReligiousPractice,
		Madhab:            u.Madhab,
		Languages:         u.Languages,
		AboutMe:           u.AboutMe,
		LookingFor:        u.LookingFor,
		PhotoURL:          u.PhotoURL,
	}
}
