package entity

// User represents a platform member. Id is the role-tagged IM user id (see common.Actor).
type User struct {
	Id        string  `json:"id" gorm:"column:id;type:varchar(64);primaryKey"`
	Nickname  string  `json:"nickname" gorm:"column:nickname"`
	Avatar    string  `json:"avatar" gorm:"column:avatar"`
	Role      string  `json:"role" gorm:"column:role;type:varchar(16);index"`
	Password  string  `json:"-" gorm:"column:password"`
	Extra     *string `json:"extra" gorm:"column:extra;type:json"`
	CreatedAt int64   `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt int64   `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for User
func (User) TableName() string {
	return "users"
}

// UserInfo represents public user info (without password)
type UserInfo struct {
	Id        string  `json:"id"`
	Nickname  string  `json:"nickname"`
	Avatar    string  `json:"avatar"`
	Role      string  `json:"role"`
	Extra     *string `json:"extra,omitempty"`
	CreatedAt int64   `json:"created_at"`
}

// ToUserInfo converts User to UserInfo
func (u *User) ToUserInfo() *UserInfo {
	return &UserInfo{
		Id:        u.Id,
		Nickname:  u.Nickname,
		Avatar:    u.Avatar,
		Role:      u.Role,
		Extra:     u.Extra,
		CreatedAt: u.CreatedAt,
	}
}
