package profile

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ZanzyTHEbar/core-view/internal/types"
)

var ErrInvalidToken = errors.New("invalid profile token")

// Token is the compact, self-contained form of a profile used in share links.
// Scores are in fixed dimension order.
type Token struct {
	Scores      [types.DimensionCount]int `json:"d"`
	ArchetypeID string                    `json:"a"`
	IssuedAt    int64                     `json:"t"`
}

// NewToken captures p. Dimensions missing from p encode as the neutral score.
func NewToken(p Profile) Token {
	t := Token{ArchetypeID: p.ArchetypeID, IssuedAt: p.CompletedAt.Unix()}
	for i, d := range types.AllDimensions() {
		t.Scores[i] = 50
		if s, ok := p.Score(d); ok {
			t.Scores[i] = s.Score
		}
	}
	return t
}

// Time returns the profile completion time carried by the token.
func (t Token) Time() time.Time {
	return time.Unix(t.IssuedAt, 0).UTC()
}

// Dimensions expands the token into dimension scores. Confidence is not carried.
func (t Token) Dimensions() []types.DimensionScore {
	out := make([]types.DimensionScore, 0, types.DimensionCount)
	for i, d := range types.AllDimensions() {
		out = append(out, types.DimensionScore{DimensionID: d, Score: t.Scores[i]})
	}
	return out
}

// EncodeToken renders p as unpadded URL-safe base64 JSON.
func EncodeToken(p Profile) string {
	raw, _ := json.Marshal(NewToken(p))
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeToken parses a token produced by EncodeToken. Padded input is accepted.
func DecodeToken(s string) (Token, error) {
	raw, err := base64.RawURLEncoding.DecodeString(trimPadding(s))
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := t.validate(); err != nil {
		return Token{}, err
	}
	return t, nil
}

func (t Token) validate() error {
	if t.ArchetypeID == "" {
		return fmt.Errorf("%w: missing archetype", ErrInvalidToken)
	}
	for i, s := range t.Scores {
		if s < 0 || s > 100 {
			return fmt.Errorf("%w: score %d out of range for %s", ErrInvalidToken, s, types.AllDimensions()[i])
		}
	}
	return nil
}

func trimPadding(s string) string {
	for len(s) > 0 && s[len(s)-1] == '=' {
		s = s[:len(s)-1]
	}
	return s
}

type signedClaims struct {
	Token
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256-signed profile tokens, for links whose
// scores must not be editable by the holder.
type Signer struct {
	secret []byte
	issuer string
}

// TokenIssuer is the issuer claim on signed share tokens.
const TokenIssuer = "core-view"

func NewSigner(secret []byte, issuer string) *Signer {
	return &Signer{secret: secret, issuer: issuer}
}

func (s *Signer) Sign(p Profile) (string, error) {
	t := NewToken(p)
	claims := signedClaims{
		Token: t,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			IssuedAt: jwt.NewNumericDate(t.Time()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign profile token: %w", err)
	}
	return signed, nil
}

func (s *Signer) Verify(tokenString string) (Token, error) {
	var claims signedClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := claims.Token.validate(); err != nil {
		return Token{}, err
	}
	return claims.Token, nil
}
