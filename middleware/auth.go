package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"eco-agent-backend/config"
	"eco-agent-backend/model"
	"eco-agent-backend/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ownerKey = "owner"

	AnonymousIDHeader = "X-Anonymous-ID"
	AnonymousIDCookie = "eco_anon_id"

	anonymousCookieMaxAge = 365 * 24 * 60 * 60
)

var anonymousIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// Claims 身份令牌由外部认证服务签发，这里只做校验
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func GenerateToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.Cfg.JWT.SecretKey))
}

func ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.Cfg.JWT.SecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// IdentityMiddleware 携带令牌时按登录用户处理，否则使用匿名 ID，首次访问时下发
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				slog.Info("Invalid authorization format")
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Response{
					Msg: "invalid authorization header",
				})
				return
			}

			claims, err := ParseToken(parts[1])
			if err != nil {
				slog.Info("Invalid token", "err", err)
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Response{
					Msg: "invalid token",
				})
				return
			}

			c.Set(ownerKey, model.Owner{UserID: claims.UserID})
			c.Next()
			return
		}

		anonymousID := c.GetHeader(AnonymousIDHeader)
		if anonymousID == "" {
			anonymousID, _ = c.Cookie(AnonymousIDCookie)
		}
		if !anonymousIDPattern.MatchString(anonymousID) {
			anonymousID = uuid.NewString()
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(AnonymousIDCookie, anonymousID, anonymousCookieMaxAge, "/", "", c.Request.TLS != nil, true)
		c.Header(AnonymousIDHeader, anonymousID)

		c.Set(ownerKey, model.Owner{AnonymousID: anonymousID})
		c.Next()
	}
}

// RequireUser 仅允许登录用户访问
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if OwnerFrom(c).IsAnonymous() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Response{
				Msg: "login required",
			})
			return
		}
		c.Next()
	}
}

func OwnerFrom(c *gin.Context) model.Owner {
	if v, ok := c.Get(ownerKey); ok {
		if owner, ok := v.(model.Owner); ok {
			return owner
		}
	}
	return model.Owner{}
}
