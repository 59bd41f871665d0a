package handlers

import (
	"net/http"

	"nexor/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SetupRouter builds the routed part of the server. uploadDir is served
// under /uploads when avatars are kept on local disk; pass "" otherwise.
func SetupRouter(app App, uploadDir string) *chi.Mux {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	if utils.TrustProxy {
		mux.Use(middleware.RealIP)
	}
	mux.Use(NewStructuredLogger(app.Logger()))
	mux.Use(middleware.Recoverer)
	mux.Use(app.Sessions().LoadAndSave)

	if uploadDir != "" {
		mux.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadDir))))
	}

	mux.Get("/healthz", MakeHandler(app, HandleHealth))

	mux.Route("/api", func(r chi.Router) {
		r.Use(AccessLogMiddleware(app))

		r.Get("/session", MakeHandler(app, HandleSession))

		// Chatbot
		r.Get("/chat/history", MakeHandler(app, HandleChatHistory))
		r.Get("/chat/quick", MakeHandler(app, HandleChatQuick))
		r.With(RateLimit(app, "chat")).Post("/chat", MakeHandler(app, HandleChatSend))

		// Contact form and the intake it delivers to
		r.With(RateLimit(app, "contact")).Post("/contact", MakeHandler(app, HandleContactSubmit))
		r.With(RequireIntakeToken(app), RateLimit(app, "intake")).Post("/contacts", MakeHandler(app, HandleContactIntake))

		// Forum
		r.Route("/forum", func(r chi.Router) {
			r.With(RateLimit(app, "register")).Post("/register", MakeHandler(app, HandleRegister))
			r.With(RateLimit(app, "login")).Post("/login", MakeHandler(app, HandleLogin))
			r.Post("/logout", MakeHandler(app, HandleLogout))
			r.Get("/categories", MakeHandler(app, HandleCategories))
			r.Get("/categories/{categoryID}/topics", MakeHandler(app, HandleCategoryTopics))
			r.Get("/topics/{topicID}", MakeHandler(app, HandleViewTopic))

			r.Group(func(r chi.Router) {
				r.Use(RequireUser(app))
				r.Post("/topics", MakeHandler(app, HandleCreateTopic))
				r.Put("/topics/{topicID}", MakeHandler(app, HandleEditTopic))
				r.Post("/topics/{topicID}/posts", MakeHandler(app, HandleReply))
				r.Post("/avatar", MakeHandler(app, HandleAvatarUpload))
			})
		})

		// Admin panel
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireLAN)
			r.Use(RequireAdmin(app))
			r.Get("/dashboard", MakeHandler(app, HandleDashboard))
			r.Get("/contacts", MakeHandler(app, HandleContactsList))
			r.Post("/contacts/{contactID}/respond", MakeHandler(app, HandleRespondContact))
			r.Get("/logs", MakeHandler(app, HandleAccessLogs))
			r.Get("/users", MakeHandler(app, HandleUsers))
			r.Get("/stats", MakeHandler(app, HandleStats))
			r.Get("/settings", MakeHandler(app, HandleSettingsGet))
			r.Put("/settings", MakeHandler(app, HandleSettingsPut))
			r.Post("/topics/{topicID}/{flag}", MakeHandler(app, HandleTopicFlag))
			r.Get("/fallback", MakeHandler(app, HandleFallbackList))
			r.Delete("/fallback", MakeHandler(app, HandleFallbackClear))
			r.Post("/fallback/sync", MakeHandler(app, HandleFallbackSync))
			r.Post("/backup", MakeHandler(app, HandleDatabaseBackup))
		})
	})

	return mux
}
