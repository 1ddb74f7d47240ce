package identity

import (
	"errors"
	"strings"
	"time"

	"authflow/internal/configuration"
	"authflow/internal/models"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var errInvalidToken = errors.New("invalid token")

type claims struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
	jwt.RegisteredClaims
}

func newAccessToken(jwtSecret string, user models.User, expiryMinutes int, now time.Time) (string, error) {
	c := claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    configuration.AppName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute * time.Duration(expiryMinutes))),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString([]byte(jwtSecret))
}

// parseBearer validates the signature, expiry and issuer of an Authorization header value.
func parseBearer(jwtSecret string, header string) (claims, error) {
	if !strings.HasPrefix(header, "Bearer ") {
		return claims{}, errInvalidToken
	}

	c := &claims{}
	_, err := jwt.ParseWithClaims(
		strings.TrimPrefix(header, "Bearer "),
		c,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(jwtSecret), nil
		},
		jwt.WithIssuer(configuration.AppName),
	)
	if err != nil {
		return claims{}, errInvalidToken
	}

	return *c, nil
}

func createHash(password string) (string, error) {
	hash, err := argon2id.CreateHash(password, &argon2id.Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		return "", errors.New("can not create hash password")
	}
	return hash, nil
}

func comparePassword(password, hash string) bool {
	match, err := argon2id.ComparePasswordAndHash(password, hash)
	return err == nil && match
}
