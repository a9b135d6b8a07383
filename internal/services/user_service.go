package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"time"

	"CommuneChat/server/internal/db"
	"CommuneChat/server/internal/models"
	"CommuneChat/server/internal/utils"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

type UserService struct{}

func NewUserService() *UserService {
	return &UserService{}
}

func (us *UserService) CheckUserExists(ctx context.Context, username, email string) (bool, error) {
	query := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("COUNT(*)").
		From("users").
		Where(squirrel.Or{
			squirrel.Eq{"username": username},
			squirrel.Eq{"email": email},
		})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		log.Printf("Failed to build SQL query: %v", err)
		return false, err
	}

	var count int
	err = db.Pool.QueryRow(ctx, sqlStr, args...).Scan(&count)
	if err != nil {
		log.Printf("Error checking user existence: %v", err)
		return false, err
	}

	return count > 0, nil
}

// CreateUser hashes the password, generates a 6-digit email verification
// code, and inserts the user in unverified state. The code is returned so
// the caller can hand it to the mail delivery path.
func (us *UserService) CreateUser(ctx context.Context, user *models.User) (int, string, error) {
	hashedPassword, err := utils.HashPassword(user.Password)
	if err != nil {
		log.Printf("Failed to hash password: %v", err)
		return 0, "", err
	}

	code, err := generateVerificationCode()
	if err != nil {
		log.Printf("Failed to generate verification code: %v", err)
		return 0, "", err
	}
	expiresAt := time.Now().Add(10 * time.Minute)

	query := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Insert("users").
		Columns("username", "email", "nickname", "password", "role",
			"is_email_verified", "email_verification_code", "email_verification_expires_at").
		Values(user.Username, user.Email, user.Nickname, hashedPassword, models.RoleUser,
			false, code, expiresAt).
		Suffix("RETURNING id")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		log.Printf("Failed to build SQL query: %v", err)
		return 0, "", err
	}

	var userID int
	err = db.Pool.QueryRow(ctx, sqlStr, args...).Scan(&userID)
	if err != nil {
		log.Printf("Error creating user: %v", err)
		return 0, "", err
	}

	log.Printf("User created: %s (ID: %d)", user.Username, userID)
	return userID, code, nil
}

// VerifyEmail checks the submitted code against the stored one and flips the
// user into verified state.
func (us *UserService) VerifyEmail(ctx context.Context, email, code string) (*models.User, error) {
	user, err := us.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if user.IsEmailVerified {
		return user, nil
	}

	if user.EmailVerificationCode == nil || *user.EmailVerificationCode != code {
		return nil, fmt.Errorf("verification code does not match")
	}

	if user.EmailVerificationExpiresAt != nil && time.Now().After(*user.EmailVerificationExpiresAt) {
		return nil, fmt.Errorf("verification code has expired")
	}

	query := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Update("users").
		Set("is_email_verified", true).
		Set("email_verification_code", nil).
		Set("email_verification_expires_at", nil).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": user.ID})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		log.Printf("Failed to build SQL query: %v", err)
		return nil, err
	}

	_, err = db.Pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		log.Printf("Error verifying email for user %d: %v", user.ID, err)
		return nil, err
	}

	user.IsEmailVerified = true
	user.EmailVerificationCode = nil
	user.EmailVerificationExpiresAt = nil

	log.Printf("Email verified for user %d", user.ID)
	return user, nil
}

func (us *UserService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return us.getUserBy(ctx, squirrel.Eq{"username": username})
}

func (us *UserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return us.getUserBy(ctx, squirrel.Eq{"email": email})
}

func (us *UserService) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	return us.getUserBy(ctx, squirrel.Eq{"id": id})
}

func (us *UserService) getUserBy(ctx context.Context, cond squirrel.Eq) (*models.User, error) {
	query := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("id", "username", "email", "nickname", "password", "role",
			"is_email_verified", "email_verification_code", "email_verification_expires_at",
			"created_at", "updated_at").
		From("users").
		Where(cond)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		log.Printf("Failed to build SQL query: %v", err)
		return nil, err
	}

	var user models.User
	err = db.Pool.QueryRow(ctx, sqlStr, args...).Scan(
		&user.ID, &user.Username, &user.Email, &user.Nickname, &user.Password, &user.Role,
		&user.IsEmailVerified, &user.EmailVerificationCode, &user.EmailVerificationExpiresAt,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.ErrUserNotFound
		}
		log.Printf("Error fetching user: %v", err)
		return nil, err
	}

	return &user, nil
}

func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
