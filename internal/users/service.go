package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mprlab/colist/internal/auth"
	"github.com/mprlab/colist/internal/domain"
	"github.com/mprlab/colist/internal/model"
)

const (
	opRegister       = "users.register"
	opAuthenticate   = "users.authenticate"
	opFindByID       = "users.find_by_id"
	opFindByEmail    = "users.find_by_email"
	opEditProfile    = "users.edit_profile"
	opChangePassword = "users.change_password"
)

var errMissingDatabase = errors.New("database handle is required")

// ServiceConfig describes the dependencies for the account service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages first-party user accounts.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, domain.Wrap(domain.KindInternal, opRegister, errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Register creates a new account after validating credentials. The email must
// not already be registered.
func (s *Service) Register(ctx context.Context, username, email, password string) (model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if err := auth.ValidateUsername(username); err != nil {
		return model.User{}, domain.Wrap(domain.KindInvalidRequest, opRegister, err)
	}
	if err := auth.ValidateEmail(email); err != nil {
		return model.User{}, domain.Wrap(domain.KindInvalidRequest, opRegister, err)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return model.User{}, domain.Wrap(domain.KindInternal, opRegister, err)
	}
	if count > 0 {
		return model.User{}, domain.E(domain.KindConflict, opRegister, "user already exists, please login")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return model.User{}, domain.Wrap(domain.KindInvalidRequest, opRegister, err)
	}

	user := model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return model.User{}, domain.Wrap(domain.KindInternal, opRegister, err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return user, nil
}

// Authenticate verifies email/password credentials and returns the account.
func (s *Service) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.User{}, domain.E(domain.KindNotFound, opAuthenticate, "user not found, please register")
	}
	if err != nil {
		return model.User{}, domain.Wrap(domain.KindInternal, opAuthenticate, err)
	}

	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return model.User{}, domain.E(domain.KindUnauthenticated, opAuthenticate, "invalid credentials")
	}
	return user, nil
}

// FindByID loads a user by id.
func (s *Service) FindByID(ctx context.Context, userID string) (model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.User{}, domain.E(domain.KindNotFound, opFindByID, "user not found")
	}
	if err != nil {
		return model.User{}, domain.Wrap(domain.KindInternal, opFindByID, err)
	}
	return user, nil
}

// FindByEmail loads a user by email.
func (s *Service) FindByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.User{}, domain.E(domain.KindNotFound, opFindByEmail, "user not found")
	}
	if err != nil {
		return model.User{}, domain.Wrap(domain.KindInternal, opFindByEmail, err)
	}
	return user, nil
}

// ProfileUpdate carries the optional profile fields.
type ProfileUpdate struct {
	Username  *string
	AvatarURL *string
}

// EditProfile updates display name and/or avatar reference. The avatar bytes
// live with an external host; only the reference is stored.
func (s *Service) EditProfile(ctx context.Context, userID string, update ProfileUpdate) (model.User, error) {
	user, err := s.FindByID(ctx, userID)
	if err != nil {
		return model.User{}, err
	}

	updates := map[string]interface{}{}
	if update.Username != nil {
		username := strings.TrimSpace(*update.Username)
		if err := auth.ValidateUsername(username); err != nil {
			return model.User{}, domain.Wrap(domain.KindInvalidRequest, opEditProfile, err)
		}
		updates["username"] = username
	}
	if update.AvatarURL != nil {
		updates["avatar_url"] = strings.TrimSpace(*update.AvatarURL)
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return model.User{}, domain.Wrap(domain.KindInternal, opEditProfile, err)
	}
	return s.FindByID(ctx, userID)
}

// ChangePassword verifies the current password and stores a new hash. The new
// password must differ from the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		return domain.E(domain.KindUnauthenticated, opChangePassword, "incorrect current password")
	}
	if err := auth.ComparePassword(user.PasswordHash, newPassword); err == nil {
		return domain.E(domain.KindInvalidRequest, opChangePassword, "new password cannot be the same as the current password")
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return domain.Wrap(domain.KindInvalidRequest, opChangePassword, err)
	}

	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update("password_hash", hash).Error; err != nil {
		return domain.Wrap(domain.KindInternal, opChangePassword, err)
	}

	s.logger.Info("password changed", zap.String("user_id", userID))
	return nil
}
