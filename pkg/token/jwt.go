// Package token 校验 LMS 签发给助教服务的 JSON Web Tokens (JWT)。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin 拥有全部课程的访问权限。
const RoleAdmin = "admin"

// ErrInvalidToken 表示 token 签名、签发方或有效期校验失败。
var ErrInvalidToken = errors.New("invalid token")

// JWTManager 负责 JWT 的签发与校验。服务本身只校验，签发用于测试和运维脚本。
type JWTManager struct {
	secretKey []byte
	issuer    string
}

// Claims 是 LMS 写入 token 的调用方信息。
type Claims struct {
	UserID    uint   `json:"user_id"`
	Role      string `json:"role"`
	CourseIDs []uint `json:"course_ids"`
	jwt.RegisteredClaims
}

// CanAccessCourse 判断调用方能否访问指定课程。
func (c *Claims) CanAccessCourse(courseID uint) bool {
	if c.Role == RoleAdmin {
		return true
	}
	for _, id := range c.CourseIDs {
		if id == courseID {
			return true
		}
	}
	return false
}

// NewJWTManager 创建一个新的 JWTManager 实例。issuer 为空时不校验签发方。
func NewJWTManager(secret, issuer string) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secret),
		issuer:    issuer,
	}
}

// GenerateToken 签发一个 HS256 token。
func (m *JWTManager) GenerateToken(userID uint, role string, courseIDs []uint, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    userID,
		Role:      role,
		CourseIDs: courseIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// VerifyToken 验证给定的 token 字符串并返回其中的 Claims。
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
