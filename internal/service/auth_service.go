package service

import (
	"errors"
	"strings"

	"dealdesk/config"
	"dealdesk/internal/auth"
	"dealdesk/internal/domain"
	"dealdesk/internal/models"
	"dealdesk/internal/repository"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailExists  = errors.New("email already registered")
	ErrInvalidCreds = errors.New("invalid email or password")
	ErrBlocked      = errors.New("account is blocked")
)

type AuthService struct {
	cfg        *config.Config
	userRepo   *repository.UserRepository
	walletRepo *repository.WalletRepository
}

func NewAuthService(cfg *config.Config, userRepo *repository.UserRepository, walletRepo *repository.WalletRepository) *AuthService {
	return &AuthService{cfg: cfg, userRepo: userRepo, walletRepo: walletRepo}
}

// Register creates a user and their wallet. addedByID links an investor to
// the fund manager who invited them; zero means self-registered.
func (s *AuthService) Register(name, company, email, phone, password, role string, addedByID uint) (*models.User, string, string, error) {
	_, err := s.userRepo.GetByEmail(email)
	if err == nil {
		return nil, "", "", ErrEmailExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", "", err
	}
	u := &models.User{
		Name:         name,
		Company:      company,
		Email:        email,
		PhoneNo:      phone,
		PasswordHash: string(hash),
		Role:         role,
	}
	if addedByID != 0 {
		u.AddedByID = &addedByID
	}
	if err := s.userRepo.Create(u); err != nil {
		return nil, "", "", err
	}
	// Every account gets a wallet at creation; it is never deleted.
	if _, err := s.walletRepo.GetOrCreate(u.ID); err != nil {
		return nil, "", "", err
	}
	access, refresh, err := s.issueTokens(u)
	return u, access, refresh, err
}

func (s *AuthService) Login(email, password string) (*models.User, string, string, error) {
	u, err := s.userRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", "", ErrInvalidCreds
		}
		return nil, "", "", err
	}
	if u.IsBlocked {
		return nil, "", "", ErrBlocked
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", "", ErrInvalidCreds
	}
	access, refresh, err := s.issueTokens(u)
	return u, access, refresh, err
}

func (s *AuthService) Refresh(refreshToken string) (*models.User, string, string, error) {
	userID, err := auth.ParseRefreshToken(&s.cfg.JWT, refreshToken)
	if err != nil {
		return nil, "", "", err
	}
	u, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, "", "", err
	}
	if u.IsBlocked {
		return nil, "", "", ErrBlocked
	}
	access, refresh, err := s.issueTokens(u)
	return u, access, refresh, err
}

// LoginWithGoogle creates or links a user by Google ID. New Google signups
// default to the investor role.
func (s *AuthService) LoginWithGoogle(googleID, email, name string) (*models.User, string, string, bool, error) {
	u, err := s.userRepo.GetByGoogleID(googleID)
	if err == nil {
		access, refresh, terr := s.issueTokens(u)
		return u, access, refresh, false, terr
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", "", false, err
	}
	existing, _ := s.userRepo.GetByEmail(email)
	if existing != nil {
		gid := googleID
		existing.GoogleID = &gid
		if err := s.userRepo.Update(existing); err != nil {
			return nil, "", "", false, err
		}
		access, refresh, terr := s.issueTokens(existing)
		return existing, access, refresh, false, terr
	}
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	gid := googleID
	u = &models.User{
		Name:     name,
		Email:    email,
		GoogleID: &gid,
		Role:     domain.RoleInvestor,
	}
	if err := s.userRepo.Create(u); err != nil {
		return nil, "", "", false, err
	}
	if _, err := s.walletRepo.GetOrCreate(u.ID); err != nil {
		return nil, "", "", false, err
	}
	access, refresh, terr := s.issueTokens(u)
	return u, access, refresh, true, terr
}

func (s *AuthService) ChangePassword(userID uint, current, next string) error {
	u, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}
	if u.PasswordHash == "" {
		return ErrInvalidCreds
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCreds
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return s.userRepo.Update(u)
}

func (s *AuthService) issueTokens(u *models.User) (string, string, error) {
	var addedBy uint
	if u.AddedByID != nil {
		addedBy = *u.AddedByID
	}
	access, err := auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email, u.Role, addedBy)
	if err != nil {
		return "", "", err
	}
	refresh, err := auth.GenerateRefreshToken(&s.cfg.JWT, u.ID)
	if err != nil {
		return access, "", err
	}
	return access, refresh, nil
}
