package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"

	"studio-manager/internal/models"
)

// ActingUser — контекст авторизации, который ядро получает извне и которому
// доверяет: кто вызывает и, для тренера, id его профиля. Токены здесь только
// читаются, выпуск токенов — отдельная система.
type ActingUser struct {
	UserID    int
	Role      models.Role
	TrainerID int
}

const actingUserKey = "actingUser"

// AuthContext разбирает Bearer-токен и кладёт ActingUser в Locals. Запросы без
// токена пропускаются с ролью admin: публичных маршрутов у приложения нет,
// работа без токена возможна только за внутренним периметром.
func AuthContext(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.Locals(actingUserKey, ActingUser{Role: models.RoleAdmin})
			return c.Next()
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return jsonError(c, 401, "Недействительный токен", err)
		}

		acting := ActingUser{Role: models.Role(asString(claims["role"]))}
		acting.UserID = asInt(claims["user_id"])
		acting.TrainerID = asInt(claims["trainer_id"])
		c.Locals(actingUserKey, acting)
		return c.Next()
	}
}

func actingUser(c *fiber.Ctx) ActingUser {
	if u, ok := c.Locals(actingUserKey).(ActingUser); ok {
		return u
	}
	return ActingUser{Role: models.RoleAdmin}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	// числовые claims приходят из JSON как float64
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return 0
}
