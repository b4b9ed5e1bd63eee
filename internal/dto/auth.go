package dto

// ── 认证模块 DTO ──

// LoginRequest 登录请求
type LoginRequest struct {
	Username   string `json:"username"    binding:"required,min=3,max=100"`
	Password   string `json:"password"    binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

// RegisterRequest 注册请求；自助注册的角色仅限 student / parent
type RegisterRequest struct {
	Username    string `json:"username"     binding:"required,min=3,max=100"`
	Password    string `json:"password"     binding:"required,min=8,max=72"`
	DisplayName string `json:"display_name" binding:"max=100"`
	Role        string `json:"role"         binding:"omitempty,oneof=student parent"`
}

// RefreshTokenRequest 刷新 Token 请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest 登出请求；refresh_token 可选，一并拉黑
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}
