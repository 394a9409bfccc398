package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"

	"github.com/svyatogor45/radar-arb/pkg/crypto"
)

// debugUsername, debugPassword и debugPasswordHash защищают debug endpoints.
// Загружаются из переменных окружения DEBUG_USERNAME, DEBUG_PASSWORD и
// DEBUG_PASSWORD_HASH. DEBUG_PASSWORD_HASH (a bcrypt hash) takes precedence
// over the plaintext DEBUG_PASSWORD when both are set.
// Если ни одна не установлена, debug endpoints будут недоступны в production.
var (
	debugUsername     = os.Getenv("DEBUG_USERNAME")
	debugPassword     = os.Getenv("DEBUG_PASSWORD")
	debugPasswordHash = os.Getenv("DEBUG_PASSWORD_HASH")
)

// DebugAuth - middleware для защиты debug/pprof endpoints
//
// Назначение:
// Защищает debug endpoints (/debug/pprof/*, /debug/runtime) от неавторизованного доступа.
// Использует HTTP Basic Authentication для простоты.
//
// Конфигурация:
// - DEBUG_USERNAME: имя пользователя для доступа к debug endpoints
// - DEBUG_PASSWORD: пароль для доступа к debug endpoints
// - Если переменные не установлены: при ENV пустом или "development" запросы
//   пропускаются без проверки, иначе возвращается 403 Forbidden
//
// Безопасность:
// - Использует constant-time сравнение для предотвращения timing attacks
// - В production ОБЯЗАТЕЛЬНО установить DEBUG_USERNAME и DEBUG_PASSWORD
// - Рекомендуется использовать сложные пароли
//
// Использование:
//
//	debug := router.PathPrefix("/debug").Subrouter()
//	debug.Use(middleware.DebugAuth)
func DebugAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Если credentials не настроены, запрещаем доступ в production
		if debugUsername == "" || (debugPassword == "" && debugPasswordHash == "") {
			// В development (если явно не настроено) разрешаем доступ
			if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Debug endpoints disabled. Set DEBUG_USERNAME and DEBUG_PASSWORD(_HASH).", http.StatusForbidden)
			return
		}

		// Получаем credentials из запроса
		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(debugUsername)) == 1

		// Prefer the bcrypt hash when configured: constant-time comparison
		// of plaintext is only safe for the fallback, unhashed path.
		var passMatch bool
		if debugPasswordHash != "" {
			passMatch = crypto.CheckPasswordMatch(pass, debugPasswordHash)
		} else {
			passMatch = subtle.ConstantTimeCompare([]byte(pass), []byte(debugPassword)) == 1
		}

		if !userMatch || !passMatch {
			w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Auth - middleware для аутентификации и авторизации запросов
//
// Текущая реализация пропускает все запросы без проверки: токены не
// извлекаются и не валидируются, user_id в context не добавляется,
// 401 Unauthorized не возвращается, rate limiting не выполняется.
// SetupRoutes этот middleware ни к одному маршруту не подключает.
func Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// TODO:
		// 1. Извлечь токен из заголовка Authorization: Bearer <token>
		// 2. Если токена нет - вернуть 401 Unauthorized
		// 3. Валидировать JWT токен:
		//    - Проверить подпись (используя JWT_SECRET из config)
		//    - Проверить срок действия (exp claim)
		// 4. Извлечь claims из токена (user_id, роль)
		// 5. Добавить информацию в context запроса
		// 6. Передать управление следующему handler

		// Временная реализация: пропускать все запросы (для разработки)
		next.ServeHTTP(w, r)
	})
}

// OptionalAuth - опциональная аутентификация
//
// Текущая реализация пропускает все запросы без проверки: предоставленный
// токен не валидируется и в context ничего не добавляется.
func OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// TODO:
		// 1. Попытаться извлечь токен из заголовка
		// 2. Если токен есть - валидировать и добавить в context
		// 3. Если токена нет или невалидный - продолжить без auth
		// 4. Передать управление следующему handler

		next.ServeHTTP(w, r)
	})
}
