package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/auth"
	"github.com/atelier-market/api/internal/repositories"
)

// TokenIssuer signs principal tokens.
type TokenIssuer interface {
	Issue(principal domain.Principal) (string, time.Time, error)
}

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// AuthServiceDeps bundles collaborators required to construct an AuthService.
type AuthServiceDeps struct {
	Shoppers repositories.ShopperRepository
	Shops    repositories.ShopRepository
	Tokens   TokenIssuer
	Hasher   PasswordHasher
	Clock    func() time.Time
	Logger   Logger
}

type authService struct {
	shoppers repositories.ShopperRepository
	shops    repositories.ShopRepository
	tokens   TokenIssuer
	hasher   PasswordHasher
	now      func() time.Time
	log      Logger
}

var _ auth.PrincipalDirectory = (*authService)(nil)

// NewAuthService wires dependencies into a concrete AuthService implementation.
func NewAuthService(deps AuthServiceDeps) (AuthService, error) {
	if deps.Shoppers == nil || deps.Shops == nil {
		return nil, errors.New("auth service: shopper and shop repositories are required")
	}
	if deps.Tokens == nil || deps.Hasher == nil {
		return nil, errors.New("auth service: token issuer and hasher are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = func(context.Context, string, map[string]any) {}
	}
	return &authService{
		shoppers: deps.Shoppers,
		shops:    deps.Shops,
		tokens:   deps.Tokens,
		hasher:   deps.Hasher,
		now:      func() time.Time { return clock().UTC() },
		log:      log,
	}, nil
}

func (s *authService) RegisterShopper(ctx context.Context, cmd RegisterCommand) (AuthResult, error) {
	email, hash, err := s.prepareRegistration(cmd)
	if err != nil {
		return AuthResult{}, err
	}
	now := s.now()
	shopper := domain.Shopper{
		ID:           newID("shp_"),
		Email:        email,
		Name:         strings.TrimSpace(cmd.Name),
		PasswordHash: hash,
		Role:         domain.RoleShopper,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.shoppers.Create(ctx, shopper); err != nil {
		return AuthResult{}, mapRepoError("auth.registerShopper", err)
	}
	s.log(ctx, "auth.shopper.registered", map[string]any{"shopperId": shopper.ID})
	return s.issue(shopper.Principal())
}

func (s *authService) RegisterShop(ctx context.Context, cmd RegisterCommand) (AuthResult, error) {
	email, hash, err := s.prepareRegistration(cmd)
	if err != nil {
		return AuthResult{}, err
	}
	now := s.now()
	shop := domain.Shop{
		ID:           newID("shop_"),
		Email:        email,
		Name:         strings.TrimSpace(cmd.Name),
		Description:  strings.TrimSpace(cmd.Description),
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.shops.Create(ctx, shop); err != nil {
		return AuthResult{}, mapRepoError("auth.registerShop", err)
	}
	s.log(ctx, "auth.shop.registered", map[string]any{"shopId": shop.ID})
	return s.issue(shop.Principal())
}

func (s *authService) LoginShopper(ctx context.Context, cmd LoginCommand) (AuthResult, error) {
	shopper, err := s.shoppers.FindByEmail(ctx, normaliseEmail(cmd.Email))
	if err != nil {
		return AuthResult{}, s.loginError(err)
	}
	if err := s.checkCredentials(shopper.PasswordHash, cmd.Password, shopper.Active); err != nil {
		return AuthResult{}, err
	}
	return s.issue(shopper.Principal())
}

func (s *authService) LoginShop(ctx context.Context, cmd LoginCommand) (AuthResult, error) {
	shop, err := s.shops.FindByEmail(ctx, normaliseEmail(cmd.Email))
	if err != nil {
		return AuthResult{}, s.loginError(err)
	}
	if err := s.checkCredentials(shop.PasswordHash, cmd.Password, shop.Active); err != nil {
		return AuthResult{}, err
	}
	return s.issue(shop.Principal())
}

// LookupShopper resolves a shopper principal for the auth middleware.
func (s *authService) LookupShopper(ctx context.Context, id string) (domain.Principal, error) {
	shopper, err := s.shoppers.Get(ctx, id)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Principal{}, auth.ErrPrincipalNotFound
		}
		return domain.Principal{}, err
	}
	return shopper.Principal(), nil
}

// LookupShop resolves a shop principal for the auth middleware.
func (s *authService) LookupShop(ctx context.Context, id string) (domain.Principal, error) {
	shop, err := s.shops.Get(ctx, id)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Principal{}, auth.ErrPrincipalNotFound
		}
		return domain.Principal{}, err
	}
	return shop.Principal(), nil
}

func (s *authService) prepareRegistration(cmd RegisterCommand) (string, string, error) {
	email := normaliseEmail(cmd.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return "", "", validationError("a valid email is required")
	}
	if strings.TrimSpace(cmd.Name) == "" {
		return "", "", validationError("name is required")
	}
	hash, err := s.hasher.Hash(cmd.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) || errors.Is(err, auth.ErrPasswordTooLong) {
			return "", "", fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return "", "", err
	}
	return email, hash, nil
}

func (s *authService) checkCredentials(hash, password string, active bool) error {
	if err := s.hasher.Compare(hash, password); err != nil {
		return fmt.Errorf("%w: invalid email or password", ErrUnauthenticated)
	}
	if !active {
		return fmt.Errorf("%w: account is inactive", ErrUnauthenticated)
	}
	return nil
}

func (s *authService) loginError(err error) error {
	if repositories.IsNotFound(err) {
		return fmt.Errorf("%w: invalid email or password", ErrUnauthenticated)
	}
	return mapRepoError("auth.login", err)
}

func (s *authService) issue(principal domain.Principal) (AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(principal)
	if err != nil {
		return AuthResult{}, fmt.Errorf("auth: issue token: %w", err)
	}
	return AuthResult{Principal: principal, Token: token, ExpiresAt: expiresAt}, nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
