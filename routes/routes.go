package routes

import (
	"math"

	"github.com/Dosada05/adjudication-engine/handlers"
	"github.com/Dosada05/adjudication-engine/middleware"
	"github.com/Dosada05/adjudication-engine/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	JWTSecret    string
	RateLimitRPS float64
}

func SetupRoutes(
	router *chi.Mux,
	cfg RouterConfig,
	authHandler *handlers.AuthHandler,
	matchHandler *handlers.MatchHandler,
	adjudicationHandler *handlers.AdjudicationHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	authenticate := middleware.Authenticate([]byte(cfg.JWTSecret))
	mutationLimit := middleware.RateLimit(cfg.RateLimitRPS, int(math.Ceil(cfg.RateLimitRPS))*2)

	router.Post("/auth/register", authHandler.Register)
	router.Post("/auth/login", authHandler.Login)

	router.Route("/matches", func(r chi.Router) {
		// Публичное чтение справочника матчей
		r.Get("/", matchHandler.ListMatches)
		r.Get("/{matchID}", matchHandler.GetMatch)
		r.Get("/{matchID}/elo-changes", matchHandler.ListEloChanges)

		// Создание матчей — подсистема расписания под админской ролью
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.Authorize(models.RoleAdmin))
			r.Use(mutationLimit)

			r.Post("/", matchHandler.CreateMatch)
		})

		// Судейская половина воркфлоу
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.Authorize(models.RoleReferee, models.RoleChiefReferee))
			r.Use(mutationLimit)

			r.Post("/{matchID}/start", adjudicationHandler.StartMatch)
			r.Post("/{matchID}/sets", adjudicationHandler.RecordSet)
			r.Post("/{matchID}/finalize", adjudicationHandler.FinalizeMatch)
			r.Post("/{matchID}/reopen", adjudicationHandler.ReopenMatch)
		})

		// Половина главного судьи
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.Authorize(models.RoleChiefReferee))
			r.Use(mutationLimit)

			r.Get("/{matchID}/preview", adjudicationHandler.ReviewPreview)
			r.Post("/{matchID}/approve", adjudicationHandler.ApproveMatch)
			r.Post("/{matchID}/reject", adjudicationHandler.RejectMatch)
		})
	})

	router.Get("/ws/matches/{matchID}", webSocketHandler.ServeWs)
}
