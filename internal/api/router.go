package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"servotv/internal/activation"
	"servotv/internal/audit"
	"servotv/internal/auth"
	"servotv/internal/config"
	"servotv/internal/db"
	"servotv/internal/playlist"
	"servotv/internal/stream"
	"servotv/internal/ws"
)

type Server struct {
	router *chi.Mux
	config *config.Config
	hub    *ws.Hub
}

func NewServer(cfg *config.Config, database *db.DB) (*Server, error) {
	resellerRepo := db.NewResellerRepository(database)
	adminRepo := db.NewAdminRepository(database)
	userRepo := db.NewUserRepository(database)
	deviceRepo := db.NewDeviceRepository(database)
	pendingCodeRepo := db.NewPendingCodeRepository(database)
	entitlementRepo := db.NewEntitlementRepository(database)
	sourceRepo := db.NewPlaylistSourceRepository(database)
	streamTokenRepo := db.NewStreamTokenRepository(database)
	playTokenRepo := db.NewPlayTokenRepository(database)
	refreshTokenRepo := db.NewRefreshTokenRepository(database)
	redemptionRepo := db.NewRedemptionRepository(database)
	ticketRepo := db.NewTicketRepository(database)
	auditRepo := db.NewAuditRepository(database)

	jwtService := auth.NewJWTService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
		cfg.Auth.DeviceSessionTTL,
	)
	codeService := auth.NewActivationCodeService(cfg.Auth.ActivationCodeTTL)
	recorder := audit.NewRecorder(auditRepo)

	activationService := activation.NewService(codeService, pendingCodeRepo, redemptionRepo, resellerRepo, userRepo)
	streamService := stream.NewService(
		jwtService,
		deviceRepo,
		userRepo,
		pendingCodeRepo,
		entitlementRepo,
		sourceRepo,
		streamTokenRepo,
		playTokenRepo,
		cfg.Streaming.StreamTokenTTL,
		cfg.Streaming.PlayTokenTTL,
	)
	aggregator := playlist.NewAggregator(cfg.Streaming.SourceTimeout)

	hub := ws.NewHub()
	go hub.Run()

	authHandler := NewAuthHandler(adminRepo, resellerRepo, refreshTokenRepo, jwtService, recorder)
	deviceHandler := NewDeviceHandler(activationService, streamService)
	activationHandler := NewActivationHandler(activationService, recorder)
	streamHandler := NewStreamHandler(streamService, aggregator, cfg.Server.BaseURL)
	adminHandler := NewAdminHandler(resellerRepo, userRepo, deviceRepo, entitlementRepo, refreshTokenRepo, streamTokenRepo, recorder)
	resellerHandler := NewResellerHandler(resellerRepo, userRepo, deviceRepo, entitlementRepo, sourceRepo, recorder)
	ticketHandler := NewTicketHandler(ticketRepo, hub, recorder)
	wsHandler := NewWebSocketHandler(hub, jwtService)
	healthHandler := NewHealthHandler(cfg.Server.Name, database)

	authMiddleware := NewAuthMiddleware(jwtService)

	loginLimiter := NewRateLimiter(10, time.Minute)
	refreshLimiter := NewRateLimiter(30, time.Minute)
	tokenLimiter := NewRateLimiter(30, time.Minute)

	r := chi.NewRouter()
	r.Use(slogRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)
	r.Use(securityHeadersMiddleware)

	r.Get("/health", healthHandler.Check)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(maxBodySizeMiddleware(1 << 20)) // 1 MB

		r.Route("/auth", func(r chi.Router) {
			r.With(RateLimitMiddleware(loginLimiter)).Post("/admin/login", authHandler.AdminLogin)
			r.With(RateLimitMiddleware(loginLimiter)).Post("/reseller/login", authHandler.ResellerLogin)
			r.With(RateLimitMiddleware(refreshLimiter)).Post("/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.RequirePanelAuth)
				r.Post("/logout", authHandler.Logout)
			})
		})

		r.Route("/device", func(r chi.Router) {
			r.With(httprate.LimitByIP(20, time.Minute)).Post("/register", deviceHandler.Register)
			r.Post("/login", deviceHandler.Login)
		})

		r.With(authMiddleware.RequireReseller).Post("/activate-code", activationHandler.Activate)

		r.Route("/stream", func(r chi.Router) {
			r.With(authMiddleware.OptionalDevice, RateLimitMiddleware(tokenLimiter)).Post("/token", streamHandler.MintToken)
			r.Get("/playlist", streamHandler.Playlist)
			r.With(authMiddleware.RequireDevice).Post("/play", streamHandler.Play)
			r.Get("/live", streamHandler.Live)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware.RequireAdmin)
			r.Post("/resellers", adminHandler.CreateReseller)
			r.Get("/resellers", adminHandler.ListResellers)
			r.Patch("/resellers/{id}/status", adminHandler.SetResellerStatus)
			r.Post("/resellers/{id}/credit", adminHandler.CreditPoints)
			r.Get("/resellers/{id}/users", adminHandler.ListResellerUsers)
			r.Post("/devices/{id}/disable", adminHandler.DisableDevice)
			r.Post("/devices/{id}/enable", adminHandler.EnableDevice)
			r.Post("/users/{id}/subscription/expire", adminHandler.ForceExpireSubscription)
		})

		r.Route("/reseller", func(r chi.Router) {
			r.Use(authMiddleware.RequireReseller)
			r.Get("/me", resellerHandler.GetMe)
			r.Get("/users", resellerHandler.ListUsers)
			r.Get("/topups", resellerHandler.TopUpHistory)
			r.Post("/users/{id}/playlists", resellerHandler.AddPlaylistSource)
			r.Get("/users/{id}/playlists", resellerHandler.ListPlaylistSources)
			r.Patch("/users/{id}/playlists/{sourceID}/status", resellerHandler.SetPlaylistSourceStatus)
			r.Delete("/users/{id}/playlists/{sourceID}", resellerHandler.DeletePlaylistSource)
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Use(authMiddleware.RequirePanelAuth)
			r.With(authMiddleware.RequireReseller).Post("/", ticketHandler.Create)
			r.Get("/", ticketHandler.List)
			r.Get("/{id}/messages", ticketHandler.Messages)
			r.Post("/{id}/messages", ticketHandler.PostMessage)
			r.With(authMiddleware.RequireAdmin).Post("/{id}/close", ticketHandler.Close)
		})
	})

	wsUpgradeLimiter := NewRateLimiter(10, time.Minute)
	r.With(RateLimitMiddleware(wsUpgradeLimiter)).Get("/ws", wsHandler.ServeWS)

	return &Server{
		router: r,
		config: cfg,
		hub:    hub,
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Shutdown() {
	s.hub.Shutdown()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func maxBodySizeMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr,
		)
	})
}
