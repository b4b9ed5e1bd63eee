package model

// 账号角色
const (
	RoleStudent = "student"
	RoleParent  = "parent"
	RoleAdmin   = "admin"
)

// Account 本地登录账号 — 对应 accounts
type Account struct {
	AccountID    string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"account_id"`
	Username     string `gorm:"type:varchar(100);not null"                     json:"username"`
	PasswordHash string `gorm:"type:varchar(255);not null"                     json:"-"`
	DisplayName  string `gorm:"type:varchar(100);not null;default:''"          json:"display_name"`
	Role         string `gorm:"type:varchar(20);not null;default:'student'"    json:"role"`
	SoftDeleteModel
}

// TableName 指定表名
func (Account) TableName() string { return "accounts" }
