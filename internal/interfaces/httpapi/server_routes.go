package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
	mux.HandleFunc("GET /v1/catalogue/metrics", handler.ListCatalogueMetrics)
	mux.HandleFunc("GET /v1/catalogue/presets", handler.ListCataloguePresets)
}

func registerQueryRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("POST /v1/query", handler.ExecuteQuery)
	mux.HandleFunc("POST /v1/ask", handler.Ask)
	mux.HandleFunc("GET /v1/players/{playerID}/similar", handler.SimilarPlayers)
	mux.HandleFunc("GET /v1/players/{playerID}/metrics", handler.PlayerMetrics)
	mux.HandleFunc("GET /v1/players/{playerID}/role", handler.PlayerRole)
	mux.HandleFunc("GET /v1/leaderboard", handler.Leaderboard)
}
