package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"app/internal/config"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey   = "user_id"   // int64
	CtxUserRoleKey = "user_role" // string
)

var errInvalidToken = errors.New("invalid token")

// 管理ルート用のJWT検証。トークンの発行は認証サービス側の持ち物で、
// ここではHS256の署名とsub/roleクレームだけを見る
func AuthJWT(cfg config.Config) echo.MiddlewareFunc {
	secret := []byte(cfg.JWTSecret)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, role, err := authenticate(c.Request().Header.Get("Authorization"), secret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			c.Set(CtxUserIDKey, userID)
			c.Set(CtxUserRoleKey, role)

			return next(c)
		}
	}
}

// Bearerトークンを検証してsub（ユーザーID）とroleを取り出す
func authenticate(authz string, secret []byte) (int64, string, error) {
	rawToken, err := bearerToken(authz)
	if err != nil {
		return 0, "", err
	}

	token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errInvalidToken
		}
		return secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return 0, "", errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", errInvalidToken
	}

	userID := subjectID(claims["sub"])
	if userID <= 0 {
		return 0, "", errInvalidToken
	}

	role, _ := claims["role"].(string)
	if role == "" {
		return 0, "", errInvalidToken
	}

	return userID, role, nil
}

func bearerToken(authz string) (string, error) {
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errInvalidToken
	}

	raw := strings.TrimSpace(parts[1])
	if raw == "" {
		return "", errInvalidToken
	}
	return raw, nil
}

// subはJSON数値（float64）でも文字列でも来る
func subjectID(v interface{}) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		id, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0
		}
		return id
	default:
		return 0
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}
