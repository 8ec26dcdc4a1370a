package main

import (
	"log"
	"time"

	"studio-manager/internal/config"
	"studio-manager/internal/database"
	"studio-manager/internal/handlers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	// .env опционален: в проде секреты приходят из окружения
	_ = godotenv.Load()

	// Загрузка конфигурации
	cfg := config.LoadConfig()

	// Инициализация базы данных
	_ = database.GetDB()
	if err := database.TestConnection(); err != nil {
		log.Fatal("Проверка БД не пройдена: ", err)
	}

	// Создание приложения Fiber
	app := fiber.New(fiber.Config{
		AppName:   "StudioManager",
		BodyLimit: 1 * 1024 * 1024,
	})

	// -------------------------------
	// Middleware: безопасность и логика
	// -------------------------------

	app.Use(recover.New())  // Перехватывает паники, возвращает 500 вместо краша
	app.Use(helmet.New())   // Добавляет HTTP security-заголовки
	app.Use(compress.New()) // Сжимает ответы gzip/br
	app.Use(logger.New())   // Логи запросов
	app.Use(limiter.New(limiter.Config{
		Max:        120,         // 120 запросов
		Expiration: time.Minute, // за минуту
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).SendString("Слишком много запросов. Попробуйте позже.")
		},
	}))
	app.Use(etag.New()) // Ускоряет GET-запросы через кэширование по ETag

	// Контекст авторизации: кто вызывает (для области расчёта тренера)
	app.Use(handlers.AuthContext(cfg.Server.JWTSecret))

	setupRoutes(app)

	log.Printf("🚀 Сервер запущен на http://localhost%s", cfg.Server.Port)

	log.Fatal(app.Listen(cfg.Server.Port))
}

// setupRoutes — маршруты приложения
func setupRoutes(app *fiber.App) {
	// сводка
	app.Get("/", handlers.Dashboard)

	// --- филиалы
	app.Get("/branches", handlers.GetBranches)
	app.Post("/branches", handlers.CreateBranch)
	app.Get("/branches/:id", handlers.GetBranchByID)
	app.Put("/branches/:id", handlers.UpdateBranch)
	app.Delete("/branches/:id", handlers.DeleteBranch)

	// --- тренеры и ставки по филиалам
	app.Get("/trainers", handlers.GetTrainers)
	app.Post("/trainers", handlers.CreateTrainer)
	app.Get("/trainers/:id", handlers.GetTrainerByID)
	app.Put("/trainers/:id", handlers.UpdateTrainer)
	app.Delete("/trainers/:id", handlers.DeleteTrainer)
	app.Put("/trainers/:id/rates/:branchID", handlers.SetTrainerBranchRate)
	app.Delete("/trainers/:id/rates/:branchID", handlers.RemoveTrainerBranchRate)

	// --- участники
	app.Get("/members", handlers.GetMembers)
	app.Post("/members", handlers.CreateMember)
	app.Get("/members/:id", handlers.GetMemberByID)
	app.Put("/members/:id", handlers.UpdateMember)
	app.Delete("/members/:id", handlers.DeleteMember)

	// --- программы и трекер слотов
	app.Get("/programs", handlers.GetPrograms)
	app.Post("/programs", handlers.CreateProgram)
	app.Get("/programs/:id", handlers.GetProgramByID)
	app.Put("/programs/:id/status", handlers.UpdateProgramStatus)
	app.Get("/programs/:id/slots", handlers.GetProgramSlots)
	app.Get("/programs/:id/sessions", handlers.GetProgramSessions)

	// --- сеансы: бронь, перенос, завершение
	app.Post("/sessions", handlers.CreateSession)
	app.Put("/sessions/:id", handlers.UpdateSession)
	app.Delete("/sessions/:id", handlers.DeleteSession)
	app.Post("/sessions/:id/complete", handlers.CompleteSession)

	// --- расчёт вознаграждения
	app.Get("/settlement", handlers.GetSettlement)
	app.Get("/settlement/export", handlers.ExportSettlementCSV)

	// --- права доступа
	app.Get("/permissions/users", handlers.GetPermissionUsers)
	app.Post("/permissions/move", handlers.MoveUser)
	app.Post("/permissions/remove-branch", handlers.RemoveUserBranch)
	app.Get("/permissions/audit", handlers.GetRoleAudit)

	// API для селектов
	app.Get("/api/members-for-select", handlers.GetMembersForSelect)
	app.Get("/api/trainers-for-select", handlers.GetTrainersForSelect)

	// админ-проверка целостности
	app.Get("/api/programs/:id/integrity", handlers.CheckProgramIntegrity)
}
