// Package token issues and verifies the user token handed out on login.
package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	autherrors "github.com/jrsteele09/peek-plugin-user/internal/errors"
	"github.com/pkg/errors"
)

// Claims carried by a user token.
type Claims struct {
	DeviceToken string `json:"device"`
	VehicleID   string `json:"vehicle,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs user tokens bound to a device.
type Issuer struct {
	signer Signer
	issuer string
	expiry time.Duration
	clock  clockwork.Clock
}

type IssuerOption func(*Issuer)

func WithClock(clock clockwork.Clock) IssuerOption {
	return func(i *Issuer) {
		i.clock = clock
	}
}

func NewIssuer(signer Signer, issuer string, expiry time.Duration, opts ...IssuerOption) (*Issuer, error) {
	if signer == nil {
		return nil, errors.New("[token.NewIssuer] signer is required")
	}
	if expiry <= 0 {
		return nil, errors.New("[token.NewIssuer] expiry must be positive")
	}
	i := &Issuer{
		signer: signer,
		issuer: issuer,
		expiry: expiry,
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue creates a token for the user on the given device.
func (i *Issuer) Issue(userName, deviceToken, vehicleID string) (string, error) {
	now := i.clock.Now()
	claims := Claims{
		DeviceToken: deviceToken,
		VehicleID:   vehicleID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   userName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.expiry)),
			ID:        uuid.New().String(),
		},
	}
	signed, err := i.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[Issuer.Issue]")
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry and returns the claims.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, autherrors.ErrInvalidToken
	}
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{i.signer.GetSigningMethod().Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if _, err := parser.ParseWithClaims(raw, claims, i.signer.GetVerificationKey); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, autherrors.Wrapf(autherrors.ErrTokenExpired, "[Issuer.Verify]")
		}
		return nil, autherrors.Wrapf(autherrors.ErrInvalidToken, "[Issuer.Verify] %v", err)
	}
	return claims, nil
}
