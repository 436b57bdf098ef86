package reviewer

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when token validation fails
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when token is expired
	ErrExpiredToken = errors.New("token expired")
	// ErrInvalidClaims is returned when claims are invalid
	ErrInvalidClaims = errors.New("invalid claims")
)

// Roles a reviewer token may carry.
const (
	// RoleReviewer resolves needs_review requests and files audit reviews.
	RoleReviewer = "reviewer"
	// RoleSupervisor can also revoke credentials.
	RoleSupervisor = "supervisor"
)

// Claims identifies the human behind a review.
type Claims struct {
	ReviewerID string `json:"reviewer_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService signs and validates reviewer tokens (HS256).
type TokenService struct {
	secretKey []byte
	issuer    string
	expiresIn time.Duration
	now       func() time.Time
}

func NewTokenService(secretKey, issuer string, expiresIn time.Duration) *TokenService {
	return &TokenService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		expiresIn: expiresIn,
		now:       time.Now,
	}
}

// GenerateToken issues a token for reviewerID with the given role.
func (s *TokenService) GenerateToken(reviewerID, role string) (string, error) {
	if reviewerID == "" || !validRole(role) {
		return "", ErrInvalidClaims
	}

	now := s.now()
	claims := Claims{
		ReviewerID: reviewerID,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   reviewerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiresIn)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateToken parses a token and checks signature, expiry and issuer.
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secretKey, nil
	}, jwt.WithIssuer(s.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ReviewerID == "" || !validRole(claims.Role) {
		return nil, ErrInvalidClaims
	}

	return claims, nil
}

// CanRevoke reports whether the role may revoke credentials.
func CanRevoke(role string) bool {
	return role == RoleSupervisor
}

func validRole(role string) bool {
	return role == RoleReviewer || role == RoleSupervisor
}
