package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"portal/internal/model"
	"portal/internal/repository"
)

// DTOs for request validation
type CreateMemberRequest struct {
	ScaName          string `json:"sca_name" binding:"required"`
	FirstName        string `json:"first_name" binding:"required"`
	LastName         string `json:"last_name" binding:"required"`
	Email            string `json:"email" binding:"required,email"`
	Phone            string `json:"phone"`
	Password         string `json:"password" binding:"required,min=6"`
	BranchID         string `json:"branch_id" binding:"required"`
	MembershipNumber string `json:"membership_number"`
	BirthYear        int    `json:"birth_year" binding:"required"`
	BirthMonth       int    `json:"birth_month" binding:"required,min=1,max=12"`
}

type UpdateMemberRequest struct {
	ScaName                  string  `json:"sca_name"`
	FirstName                string  `json:"first_name"`
	LastName                 string  `json:"last_name"`
	Email                    string  `json:"email" binding:"omitempty,email"`
	Phone                    string  `json:"phone"`
	Status                   string  `json:"status"`
	BranchID                 string  `json:"branch_id"`
	MembershipNumber         string  `json:"membership_number"`
	MembershipExpiresOn      *string `json:"membership_expires_on"`       // RFC 3339
	BackgroundCheckExpiresOn *string `json:"background_check_expires_on"` // RFC 3339
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// MemberResponse omits the password hash and flattens the branch name.
type MemberResponse struct {
	ID                       uuid.UUID `json:"id"`
	ScaName                  string    `json:"sca_name"`
	FirstName                string    `json:"first_name"`
	LastName                 string    `json:"last_name"`
	Email                    string    `json:"email"`
	Phone                    string    `json:"phone"`
	Status                   string    `json:"status"`
	BranchID                 uuid.UUID `json:"branch_id"`
	BranchName               string    `json:"branch_name,omitempty"`
	MembershipNumber         string    `json:"membership_number"`
	MembershipExpiresOn      *string   `json:"membership_expires_on"`
	BackgroundCheckExpiresOn *string   `json:"background_check_expires_on"`
	BirthYear                int       `json:"birth_year"`
	BirthMonth               int       `json:"birth_month"`
	CreatedAt                string    `json:"created_at"`
	UpdatedAt                string    `json:"updated_at"`
}

// MemberService defines the business logic for member accounts and sessions.
type MemberService interface {
	CreateMember(ctx context.Context, req CreateMemberRequest) (*MemberResponse, error)
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	RefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	GetMemberByID(ctx context.Context, id string) (*MemberResponse, error)
	ListMembers(ctx context.Context, page, limit int) ([]MemberResponse, int64, error)
	UpdateMember(ctx context.Context, id string, req UpdateMemberRequest) (*MemberResponse, error)
	DeleteMember(ctx context.Context, id string) error
}

type memberService struct {
	members     repository.MemberRepository
	branches    repository.BranchRepository
	tokens      repository.RefreshTokenRepository
	permissions PermissionService
	clock       Clock
}

func NewMemberService(members repository.MemberRepository, branches repository.BranchRepository, tokens repository.RefreshTokenRepository, permissions PermissionService, clock Clock) MemberService {
	return &memberService{members: members, branches: branches, tokens: tokens, permissions: permissions, clock: clock}
}

const (
	accessTokenTTL  = 24 * time.Hour
	refreshTokenTTL = 7 * 24 * time.Hour
)

func jwtSecret() []byte {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "default_super_secret_key" // Development fallback only
	}
	return []byte(secret)
}

var emailRegex = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

func toMemberResponse(m *model.Member) *MemberResponse {
	resp := &MemberResponse{
		ID:               m.ID,
		ScaName:          m.ScaName,
		FirstName:        m.FirstName,
		LastName:         m.LastName,
		Email:            m.Email,
		Phone:            m.Phone,
		Status:           m.Status,
		BranchID:         m.BranchID,
		MembershipNumber: m.MembershipNumber,
		BirthYear:        m.BirthYear,
		BirthMonth:       m.BirthMonth,
		CreatedAt:        m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        m.UpdatedAt.Format(time.RFC3339),
	}
	if m.Branch != nil {
		resp.BranchName = m.Branch.Name
	}
	if m.MembershipExpiresOn != nil {
		t := m.MembershipExpiresOn.Format(time.RFC3339)
		resp.MembershipExpiresOn = &t
	}
	if m.BackgroundCheckExpiresOn != nil {
		t := m.BackgroundCheckExpiresOn.Format(time.RFC3339)
		resp.BackgroundCheckExpiresOn = &t
	}
	return resp
}

func (s *memberService) CreateMember(ctx context.Context, req CreateMemberRequest) (*MemberResponse, error) {
	if !emailRegex.MatchString(req.Email) {
		return nil, errors.New("invalid email format")
	}
	if _, err := s.members.GetByEmail(ctx, req.Email); err == nil {
		return nil, errors.New("email already exists")
	}

	branchID, err := uuid.Parse(req.BranchID)
	if err != nil {
		return nil, fmt.Errorf("invalid branch id: %w", err)
	}
	if _, err := s.branches.FindByID(ctx, branchID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBranchNotFound
		}
		return nil, fmt.Errorf("failed to load branch: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.New("failed to hash password")
	}

	member := &model.Member{
		ScaName:          req.ScaName,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Email:            req.Email,
		Phone:            req.Phone,
		Password:         string(hashedPassword),
		Status:           model.MemberStatusActive,
		BranchID:         branchID,
		MembershipNumber: req.MembershipNumber,
		BirthYear:        req.BirthYear,
		BirthMonth:       req.BirthMonth,
	}
	if err := s.members.Create(ctx, member); err != nil {
		return nil, err
	}
	return toMemberResponse(member), nil
}

func (s *memberService) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	member, err := s.members.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, errors.New("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(member.Password), []byte(req.Password)); err != nil {
		return nil, errors.New("invalid email or password")
	}
	if member.Status != model.MemberStatusActive {
		return nil, errors.New("account is deactivated")
	}
	return s.issueTokens(ctx, member)
}

func (s *memberService) RefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error) {
	stored, err := s.tokens.FindByToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, errors.New("invalid refresh token")
	}
	now := s.clock()
	if !stored.ExpiresAt.After(now) {
		_ = s.tokens.DeleteByToken(ctx, req.RefreshToken)
		return nil, errors.New("refresh token expired")
	}

	member, err := s.members.GetByID(ctx, stored.MemberID)
	if err != nil {
		return nil, errors.New("invalid refresh token")
	}
	if member.Status != model.MemberStatusActive {
		return nil, errors.New("account is deactivated")
	}

	// Rotate: one refresh token is good for exactly one refresh.
	if err := s.tokens.DeleteByToken(ctx, req.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return s.issueTokens(ctx, member)
}

func (s *memberService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.tokens.DeleteByToken(ctx, refreshToken)
}

func (s *memberService) issueTokens(ctx context.Context, member *model.Member) (*TokenResponse, error) {
	now := s.clock()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": member.ID.String(),
		"iat": now.Unix(),
		"exp": now.Add(accessTokenTTL).Unix(),
	})
	accessToken, err := token.SignedString(jwtSecret())
	if err != nil {
		return nil, errors.New("failed to generate token")
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, errors.New("failed to generate refresh token")
	}
	refreshToken := base64.RawURLEncoding.EncodeToString(buf)

	if err := s.tokens.Create(ctx, &model.RefreshToken{
		MemberID:  member.ID,
		Token:     refreshToken,
		ExpiresAt: now.Add(refreshTokenTTL),
	}); err != nil {
		return nil, fmt.Errorf("failed to persist refresh token: %w", err)
	}

	return &TokenResponse{Token: accessToken, RefreshToken: refreshToken}, nil
}

func (s *memberService) GetMemberByID(ctx context.Context, id string) (*MemberResponse, error) {
	memberID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid member id: %w", err)
	}
	member, err := s.members.GetByIDWithBranch(ctx, memberID)
	if err != nil {
		return nil, ErrMemberNotFound
	}
	return toMemberResponse(member), nil
}

func (s *memberService) ListMembers(ctx context.Context, page, limit int) ([]MemberResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	members, total, err := s.members.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]MemberResponse, 0, len(members))
	for i := range members {
		responses = append(responses, *toMemberResponse(&members[i]))
	}
	return responses, total, nil
}

func (s *memberService) UpdateMember(ctx context.Context, id string, req UpdateMemberRequest) (*MemberResponse, error) {
	memberID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid member id: %w", err)
	}
	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, ErrMemberNotFound
	}

	if req.Email != "" && req.Email != member.Email {
		if _, err := s.members.GetByEmail(ctx, req.Email); err == nil {
			return nil, errors.New("email already exists")
		}
		member.Email = req.Email
	}
	if req.ScaName != "" {
		member.ScaName = req.ScaName
	}
	if req.FirstName != "" {
		member.FirstName = req.FirstName
	}
	if req.LastName != "" {
		member.LastName = req.LastName
	}
	if req.Phone != "" {
		member.Phone = req.Phone
	}
	if req.MembershipNumber != "" {
		member.MembershipNumber = req.MembershipNumber
	}
	if req.Status != "" {
		if req.Status != model.MemberStatusActive && req.Status != model.MemberStatusDeactivated {
			return nil, errors.New("invalid status: must be ACTIVE or DEACTIVATED")
		}
		member.Status = req.Status
		if req.Status == model.MemberStatusDeactivated {
			// Deactivation kills every open session immediately.
			if err := s.tokens.DeleteByMember(ctx, member.ID); err != nil {
				return nil, fmt.Errorf("failed to revoke sessions: %w", err)
			}
		}
	}
	if req.BranchID != "" {
		branchID, err := uuid.Parse(req.BranchID)
		if err != nil {
			return nil, fmt.Errorf("invalid branch id: %w", err)
		}
		if _, err := s.branches.FindByID(ctx, branchID); err != nil {
			return nil, ErrBranchNotFound
		}
		member.BranchID = branchID
	}
	if req.MembershipExpiresOn != nil {
		t, err := time.Parse(time.RFC3339, *req.MembershipExpiresOn)
		if err != nil {
			return nil, fmt.Errorf("invalid membership expiry: %w", err)
		}
		member.MembershipExpiresOn = &t
	}
	if req.BackgroundCheckExpiresOn != nil {
		t, err := time.Parse(time.RFC3339, *req.BackgroundCheckExpiresOn)
		if err != nil {
			return nil, fmt.Errorf("invalid background check expiry: %w", err)
		}
		member.BackgroundCheckExpiresOn = &t
	}

	if err := s.members.Update(ctx, member); err != nil {
		return nil, err
	}
	// Membership windows, status and branch all feed permission derivation.
	s.permissions.Invalidate(ctx, member.ID)
	return toMemberResponse(member), nil
}

func (s *memberService) DeleteMember(ctx context.Context, id string) error {
	memberID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid member id: %w", err)
	}
	if _, err := s.members.GetByID(ctx, memberID); err != nil {
		return ErrMemberNotFound
	}
	if err := s.tokens.DeleteByMember(ctx, memberID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	s.permissions.Invalidate(ctx, memberID)
	return s.members.Delete(ctx, memberID)
}
