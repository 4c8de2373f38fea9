package cognito

import (
	"errors"
	"fmt"
	"strings"

	"github.com/augustinmaps01/risk-profiling/internal/permissions"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")

	// ErrInvalidClaimType is returned when a claim has an unexpected type
	ErrInvalidClaimType = errors.New("invalid claim type")
)

// ExtractClaims extracts and parses claims from a JWT token without validation.
// Only use it on tokens that were already verified.
func ExtractClaims(tokenString string) (*ParsedClaims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := &Claims{}
	_, _, err := parser.ParseUnverified(tokenString, claims)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	return parseClaims(claims)
}

// ExtractClaimsFromValidatedToken extracts claims from an already validated jwt.Token
func ExtractClaimsFromValidatedToken(token *jwt.Token) (*ParsedClaims, error) {
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidClaimType
	}

	return parseClaims(claims)
}

// parseClaims converts Claims to ParsedClaims with proper type conversions
func parseClaims(claims *Claims) (*ParsedClaims, error) {
	if claims.Sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	sub, err := uuid.Parse(claims.Sub)
	if err != nil {
		return nil, fmt.Errorf("invalid sub UUID: %w", err)
	}

	parsed := &ParsedClaims{
		Sub:           sub,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Username:      claims.CognitoUsername,
		Groups:        append([]string(nil), claims.Groups...),
		Roles:         splitRoles(claims.Roles),
	}

	if claims.IssuedAt != nil {
		parsed.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		parsed.ExpiresAt = claims.ExpiresAt.Time
	}

	return parsed, nil
}

// ExtractSubject extracts only the subject from a token (fast path)
func ExtractSubject(tokenString string) (uuid.UUID, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := &Claims{}
	_, _, err := parser.ParseUnverified(tokenString, claims)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims.Sub == "" {
		return uuid.Nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	sub, err := uuid.Parse(claims.Sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid sub UUID: %w", err)
	}
	return sub, nil
}

// ValidateCustomClaims validates the risk profiling claims. Role hints in
// custom:roles must be slugs the permission catalog knows.
func ValidateCustomClaims(claims *Claims) error {
	if claims.Sub == "" {
		return fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if _, err := uuid.Parse(claims.Sub); err != nil {
		return fmt.Errorf("invalid sub format: %w", err)
	}

	if claims.Roles == "" {
		return nil
	}
	known := make(map[string]bool)
	for _, role := range permissions.Default().RoleSlugs() {
		known[role] = true
	}
	for _, role := range splitRoles(claims.Roles) {
		if !known[role] {
			return fmt.Errorf("invalid custom:roles value: %s", role)
		}
	}

	return nil
}

// RoleHints returns the role slugs carried by the token: custom:roles first,
// then cognito:groups, without duplicates. They are hints only; the backend
// identity remains authoritative.
func (p *ParsedClaims) RoleHints() []string {
	seen := make(map[string]bool)
	hints := make([]string, 0, len(p.Roles)+len(p.Groups))
	for _, list := range [][]string{p.Roles, p.Groups} {
		for _, role := range list {
			if role == "" || seen[role] {
				continue
			}
			seen[role] = true
			hints = append(hints, role)
		}
	}
	return hints
}

func splitRoles(raw string) []string {
	if raw == "" {
		return nil
	}
	var roles []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			roles = append(roles, part)
		}
	}
	return roles
}
