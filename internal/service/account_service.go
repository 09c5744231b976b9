package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/cloudblog-api/internal/models"
	appErrors "github.com/noah-isme/cloudblog-api/pkg/errors"
	"github.com/noah-isme/cloudblog-api/pkg/jobs"
	"github.com/noah-isme/cloudblog-api/pkg/jwtutil"
)

// DefaultCodeTTL is how long an issued verification code stays valid.
const DefaultCodeTTL = 10 * time.Minute

// MaxCodeAttempts is the number of wrong guesses after which a code is discarded.
const MaxCodeAttempts = 5

// UserStore persists accounts.
type UserStore interface {
	FindByIdentifier(ctx context.Context, email, phone string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, id string, fields map[string]interface{}) error
}

// TokenSigner issues and verifies first-party account tokens.
type TokenSigner interface {
	Generate(payload jwtutil.Payload) (string, error)
	Verify(token string) (*jwtutil.Claims, error)
}

// CodeQueue accepts verification code deliveries.
type CodeQueue interface {
	Enqueue(job jobs.Job) (string, error)
}

// AccountService implements registration, login and password reset backed by verification codes.
type AccountService struct {
	users     UserStore
	codes     KeyValueStore
	signer    TokenSigner
	queue     CodeQueue
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	codeTTL   time.Duration
	now       func() time.Time

	// guards the read-modify-write of stored codes and the code index
	codeMu sync.Mutex
}

// NewAccountService constructs an AccountService.
func NewAccountService(users UserStore, codes KeyValueStore, signer TokenSigner, queue CodeQueue, metrics *MetricsService, codeTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *AccountService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if codeTTL <= 0 {
		codeTTL = DefaultCodeTTL
	}
	return &AccountService{
		users:     users,
		codes:     codes,
		signer:    signer,
		queue:     queue,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		codeTTL:   codeTTL,
		now:       time.Now,
	}
}

// SendVerificationCode issues a six digit code for the email or phone and queues its delivery.
func (s *AccountService) SendVerificationCode(ctx context.Context, req models.VerificationCodeRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification code payload")
	}

	if req.Type == models.CodeTypeRegister {
		existing, err := s.lookup(ctx, req.Email, req.Phone)
		if err != nil {
			return err
		}
		if existing != nil {
			return alreadyRegistered(req.Email)
		}
	}

	code, err := generateCode()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate verification code")
	}

	identifier := models.Identifier(req.Email, req.Phone)
	now := s.now()
	record := models.VerificationCode{
		Code:      code,
		Type:      req.Type,
		Timestamp: now.UnixMilli(),
		ExpiresAt: now.Add(s.codeTTL).UnixMilli(),
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode verification code")
	}
	if err := s.storeCode(ctx, identifier, string(raw), record.ExpiresAt); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store verification code")
	}

	if _, err := s.queue.Enqueue(jobs.Job{
		Type:    CodeDeliveryJob,
		Payload: CodeDelivery{Identifier: identifier, Code: code, Type: req.Type},
	}); err != nil {
		s.clearCode(ctx, identifier)
		if errors.Is(err, jobs.ErrQueueFull) {
			return appErrors.Clone(appErrors.ErrTooManyRequests, "verification code delivery is busy, try again later")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send verification code")
	}

	s.metrics.RecordVerificationCode(req.Type)
	return nil
}

// Register creates an account after checking its register code.
func (s *AccountService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid register payload")
	}

	identifier := models.Identifier(req.Email, req.Phone)
	if err := s.checkCode(ctx, identifier, req.VerificationCode, models.CodeTypeRegister); err != nil {
		return nil, err
	}

	existing, err := s.lookup(ctx, req.Email, req.Phone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, alreadyRegistered(req.Email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	now := s.now().UTC()
	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: string(hash),
		Status:       models.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, UpstreamError(err, "failed to create user")
	}

	token, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.clearCode(ctx, identifier)

	s.logger.Info("account registered", zap.String("user_id", user.ID))
	return &models.AuthResult{User: user.Info(), Token: token}, nil
}

// Login authenticates by email or phone and password.
func (s *AccountService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.lookup(ctx, req.Email, req.Phone)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user does not exist")
	}
	if user.Status != "" && user.Status != models.UserStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, fmt.Sprintf("account is %s", user.Status))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid account or password")
	}

	now := s.now().UTC()
	if err := s.users.Update(ctx, user.ID, map[string]interface{}{
		"lastLoginAt": now,
		"updatedAt":   now,
	}); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &now
		user.UpdatedAt = now
	}

	token, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	return &models.AuthResult{User: user.Info(), Token: token}, nil
}

// ResetPassword replaces the password after checking a reset code.
func (s *AccountService) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset password payload")
	}

	identifier := models.Identifier(req.Email, req.Phone)
	if err := s.checkCode(ctx, identifier, req.VerificationCode, models.CodeTypeReset); err != nil {
		return err
	}

	user, err := s.lookup(ctx, req.Email, req.Phone)
	if err != nil {
		return err
	}
	if user == nil {
		return appErrors.Clone(appErrors.ErrNotFound, "user does not exist")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.users.Update(ctx, user.ID, map[string]interface{}{
		"passwordHash": string(hash),
		"updatedAt":    s.now().UTC(),
	}); err != nil {
		return UpstreamError(err, "failed to update password")
	}

	s.clearCode(ctx, identifier)
	s.logger.Info("password reset", zap.String("user_id", user.ID))
	return nil
}

// VerifyToken resolves the account behind token. Any failure yields nil.
func (s *AccountService) VerifyToken(ctx context.Context, token string) *models.User {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil
	}
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if !errors.Is(err, appErrors.ErrNotFound) {
			s.logger.Warn("failed to load token owner", zap.String("user_id", claims.UserID), zap.Error(err))
		}
		return nil
	}
	return user
}

func (s *AccountService) lookup(ctx context.Context, email, phone string) (*models.User, error) {
	user, err := s.users.FindByIdentifier(ctx, email, phone)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return nil, nil
		}
		return nil, UpstreamError(err, "failed to fetch user")
	}
	return user, nil
}

func (s *AccountService) issue(user *models.User) (string, error) {
	token, err := s.signer.Generate(jwtutil.Payload{UserID: user.ID, Email: user.Email, Phone: user.Phone})
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create token")
	}
	return token, nil
}

func (s *AccountService) checkCode(ctx context.Context, identifier, code, codeType string) error {
	s.codeMu.Lock()
	defer s.codeMu.Unlock()

	key := models.VerificationCodeKey(identifier)
	raw, ok, err := s.codes.GetItem(ctx, key)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read verification code")
	}
	if !ok {
		return appErrors.ErrCodeInvalid
	}
	var stored models.VerificationCode
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return appErrors.ErrCodeInvalid
	}
	if s.now().UnixMilli() > stored.ExpiresAt {
		s.removeCodeLocked(ctx, identifier)
		return appErrors.ErrCodeInvalid
	}
	if stored.Code == code && stored.Type == codeType {
		return nil
	}

	stored.Attempts++
	if stored.Attempts >= MaxCodeAttempts {
		s.logger.Warn("verification code discarded after repeated failures", zap.String("identifier", identifier))
		s.removeCodeLocked(ctx, identifier)
		return appErrors.ErrCodeInvalid
	}
	updated, err := json.Marshal(stored)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode verification code")
	}
	if err := s.codes.SetItem(ctx, key, string(updated)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store verification code")
	}
	return appErrors.ErrCodeInvalid
}

func (s *AccountService) clearCode(ctx context.Context, identifier string) {
	s.codeMu.Lock()
	defer s.codeMu.Unlock()
	s.removeCodeLocked(ctx, identifier)
}

// storeCode writes the code and records its expiry in the index, sweeping expired entries on the way.
func (s *AccountService) storeCode(ctx context.Context, identifier, raw string, expiresAt int64) error {
	s.codeMu.Lock()
	defer s.codeMu.Unlock()

	index := s.loadCodeIndex(ctx)
	s.sweepLocked(ctx, index)
	if err := s.codes.SetItem(ctx, models.VerificationCodeKey(identifier), raw); err != nil {
		s.saveCodeIndex(ctx, index)
		return err
	}
	index[identifier] = expiresAt
	s.saveCodeIndex(ctx, index)
	return nil
}

// SweepExpiredCodes removes every stored code past its expiry and reports how many were dropped.
func (s *AccountService) SweepExpiredCodes(ctx context.Context) int {
	s.codeMu.Lock()
	defer s.codeMu.Unlock()

	index := s.loadCodeIndex(ctx)
	removed := s.sweepLocked(ctx, index)
	if removed > 0 {
		s.saveCodeIndex(ctx, index)
	}
	return removed
}

func (s *AccountService) sweepLocked(ctx context.Context, index map[string]int64) int {
	now := s.now().UnixMilli()
	removed := 0
	for identifier, expiresAt := range index {
		if now <= expiresAt {
			continue
		}
		if err := s.codes.RemoveItem(ctx, models.VerificationCodeKey(identifier)); err != nil {
			s.logger.Warn("failed to sweep verification code", zap.String("identifier", identifier), zap.Error(err))
			continue
		}
		delete(index, identifier)
		removed++
	}
	return removed
}

func (s *AccountService) removeCodeLocked(ctx context.Context, identifier string) {
	if err := s.codes.RemoveItem(ctx, models.VerificationCodeKey(identifier)); err != nil {
		s.logger.Warn("failed to clear verification code", zap.Error(err))
		return
	}
	index := s.loadCodeIndex(ctx)
	if _, ok := index[identifier]; ok {
		delete(index, identifier)
		s.saveCodeIndex(ctx, index)
	}
}

func (s *AccountService) loadCodeIndex(ctx context.Context) map[string]int64 {
	index := map[string]int64{}
	raw, ok, err := s.codes.GetItem(ctx, models.VerificationCodeIndexKey)
	if err != nil {
		s.logger.Warn("failed to read verification code index", zap.Error(err))
		return index
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &index); err != nil {
			s.logger.Warn("discarding unreadable verification code index", zap.Error(err))
			return map[string]int64{}
		}
	}
	return index
}

func (s *AccountService) saveCodeIndex(ctx context.Context, index map[string]int64) {
	var err error
	if len(index) == 0 {
		err = s.codes.RemoveItem(ctx, models.VerificationCodeIndexKey)
	} else {
		var raw []byte
		if raw, err = json.Marshal(index); err == nil {
			err = s.codes.SetItem(ctx, models.VerificationCodeIndexKey, string(raw))
		}
	}
	if err != nil {
		s.logger.Warn("failed to write verification code index", zap.Error(err))
	}
}

func alreadyRegistered(email string) error {
	if email != "" {
		return appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}
	return appErrors.Clone(appErrors.ErrConflict, "phone already registered")
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
