package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"studio-manager/internal/database"
)

func Dashboard(c *fiber.Ctx) error {
	db := database.GetDB()

	var branchCount, trainerCount, programCount, upcomingCount int

	db.QueryRow(`SELECT COUNT(*) FROM branch`).Scan(&branchCount)
	db.QueryRow(`SELECT COUNT(*) FROM trainer WHERE active = true`).Scan(&trainerCount)
	db.QueryRow(`SELECT COUNT(*) FROM member_program WHERE status = 'valid'`).Scan(&programCount)
	db.QueryRow(`SELECT COUNT(*) FROM session WHERE status = 'booked' AND starts_at >= NOW()`).Scan(&upcomingCount)

	log.Printf("📊 Статистика: Филиалы=%d, Тренеры=%d, Программы=%d, Брони=%d",
		branchCount, trainerCount, programCount, upcomingCount)

	return jsonOK(c, fiber.Map{
		"stats": fiber.Map{
			"branches":          branchCount,
			"trainers":          trainerCount,
			"programs":          programCount,
			"upcoming_sessions": upcomingCount,
		},
	})
}
