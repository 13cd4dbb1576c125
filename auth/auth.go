package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserExists         = errors.New("username already exists")
)

const (
	sessionTTL = 24 * time.Hour
	// a session older than this gets its TTL refreshed on validation
	sessionRefreshBelow = 20 * time.Hour
)

type AuthModule struct {
	db        *pgxpool.Pool
	redis     *redis.Client
	JWTSecret string
}

func NewAuthModule(db *pgxpool.Pool, redis *redis.Client, JWTSecret string) *AuthModule {
	return &AuthModule{
		db:        db,
		redis:     redis,
		JWTSecret: JWTSecret,
	}
}

func generateSecureToken(length int) (string, error) {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(randomBytes), nil
}

// Register creates a user and opens a session for it
func (a *AuthModule) Register(ctx context.Context, username, password, email string) (int, string, error) {
	var exists bool
	err := a.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)", username).Scan(&exists)
	if err != nil {
		return 0, "", err
	}
	if exists {
		return 0, "", ErrUserExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, "", err
	}

	var userID int
	err = a.db.QueryRow(ctx,
		"INSERT INTO users (username, password, email) VALUES ($1, $2, $3) RETURNING id",
		username, string(hashed), email,
	).Scan(&userID)
	if err != nil {
		return 0, "", err
	}

	token, err := a.openSession(ctx, userID)
	if err != nil {
		return 0, "", err
	}
	return userID, token, nil
}

func (a *AuthModule) authenticateUser(ctx context.Context, username, password string) (int, error) {
	var userID int
	var passwordHash string
	err := a.db.QueryRow(ctx, "SELECT id, password FROM users WHERE username = $1", username).Scan(&userID, &passwordHash)
	if err != nil {
		return 0, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}
	return userID, nil
}

func (a *AuthModule) openSession(ctx context.Context, userID int) (string, error) {
	token, err := generateSecureToken(32)
	if err != nil {
		return "", err
	}
	if err := a.redis.Set(ctx, "session:"+token, userID, sessionTTL).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// LoginWithSession verifies credentials and opens a redis-backed session.
// Dashboard sockets authenticate with the returned token.
func (a *AuthModule) LoginWithSession(ctx context.Context, username, password string) (int, string, error) {
	userID, err := a.authenticateUser(ctx, username, password)
	if err != nil {
		return 0, "", err
	}
	token, err := a.openSession(ctx, userID)
	if err != nil {
		return 0, "", err
	}
	return userID, token, nil
}

// ValidateTokenSession resolves a session token to its user id and slides
// the expiry forward once the session has aged enough
func (a *AuthModule) ValidateTokenSession(ctx context.Context, token string) (string, error) {
	key := "session:" + token
	userID, err := a.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrInvalidToken
	} else if err != nil {
		return "", err
	}

	ttl, err := a.redis.TTL(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return "", err
	}
	if ttl < sessionRefreshBelow {
		if err := a.redis.Expire(ctx, key, sessionTTL).Err(); err != nil {
			return "", err
		}
	}
	return userID, nil
}

func (a *AuthModule) LogoutSession(ctx context.Context, token string) error {
	return a.redis.Del(ctx, "session:"+token).Err()
}

// LoginWithJWT verifies credentials and issues a signed token for the
// HTTP API
func (a *AuthModule) LoginWithJWT(ctx context.Context, username, password string) (string, error) {
	userID, err := a.authenticateUser(ctx, username, password)
	if err != nil {
		return "", err
	}
	return a.generateJWT(userID)
}

func (a *AuthModule) generateJWT(userID int) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.JWTSecret))
}

func (a *AuthModule) ValidateTokenJWT(ctx context.Context, token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.JWTSecret), nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return "", ErrInvalidToken
	}
	return fmt.Sprintf("%d", int(userID)), nil
}

// ChangePassword replaces the user's password after checking the old one
func (a *AuthModule) ChangePassword(ctx context.Context, userID int, oldPassword, newPassword string) error {
	var passwordHash string
	err := a.db.QueryRow(ctx, "SELECT password FROM users WHERE id = $1", userID).Scan(&passwordHash)
	if err != nil {
		return errors.New("user not found")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = a.db.Exec(ctx, "UPDATE users SET password = $1 WHERE id = $2", string(hashed), userID)
	return err
}
