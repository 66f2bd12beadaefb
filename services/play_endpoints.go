package services

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/koukarei/Avery-sub001/models"
	"github.com/koukarei/Avery-sub001/repository"
	"github.com/koukarei/Avery-sub001/scoring"
)

// PlayEndpoints serves the read-only REST surface around the game: browsing
// leaderboards, standings, and a player's own round history. All gameplay
// mutations go through the WebSocket protocol instead.
type PlayEndpoints struct {
	repo   *repository.GORMRepository
	images *repository.ImageStore
}

func NewPlayEndpoints(repo *repository.GORMRepository, images *repository.ImageStore) *PlayEndpoints {
	return &PlayEndpoints{
		repo:   repo,
		images: images,
	}
}

type ListLeaderboardsResponse struct {
	Leaderboards []models.Leaderboard `json:"leaderboards"`
	Count        int                  `json:"count"`
}

type StandingsResponse struct {
	LeaderboardID string            `json:"leaderboard_id"`
	Standings     []models.Standing `json:"standings"`
}

type ListRoundsResponse struct {
	Rounds []models.Round `json:"rounds"`
	Count  int            `json:"count"`
}

func (e *PlayEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/leaderboards", func(r chi.Router) {
		r.Get("/", e.ListLeaderboardsHandler)
		r.Get("/{id}", e.GetLeaderboardHandler)
		r.Get("/{id}/standings", e.GetStandingsHandler)
	})

	r.Route("/rounds", func(r chi.Router) {
		r.Get("/", e.ListRoundsHandler)
		r.Get("/{id}", e.GetRoundHandler)
	})

	r.Get("/images/{bucket}/{id}", e.GetImageHandler)
}

func (e *PlayEndpoints) ListLeaderboardsHandler(w http.ResponseWriter, r *http.Request) {
	leaderboards, err := e.repo.ListLeaderboards(r.Context())
	if err != nil {
		slog.Error("Failed to list leaderboards", "error", err)
		http.Error(w, "Failed to list leaderboards", http.StatusInternalServerError)
		return
	}

	response := ListLeaderboardsResponse{
		Leaderboards: leaderboards,
		Count:        len(leaderboards),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (e *PlayEndpoints) GetLeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	leaderboardID := chi.URLParam(r, "id")
	if leaderboardID == "" {
		http.Error(w, "Leaderboard ID is required", http.StatusBadRequest)
		return
	}

	leaderboard, err := e.repo.GetLeaderboardByID(r.Context(), leaderboardID)
	if err != nil {
		slog.Error("Failed to get leaderboard", "error", err, "leaderboard_id", leaderboardID)
		http.Error(w, "Failed to get leaderboard", http.StatusInternalServerError)
		return
	}
	if leaderboard == nil {
		http.Error(w, "Leaderboard not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"leaderboard": leaderboard,
	})
}

func (e *PlayEndpoints) GetStandingsHandler(w http.ResponseWriter, r *http.Request) {
	leaderboardID := chi.URLParam(r, "id")
	if leaderboardID == "" {
		http.Error(w, "Leaderboard ID is required", http.StatusBadRequest)
		return
	}

	leaderboard, err := e.repo.GetLeaderboardByID(r.Context(), leaderboardID)
	if err != nil {
		slog.Error("Failed to get leaderboard", "error", err, "leaderboard_id", leaderboardID)
		http.Error(w, "Failed to get leaderboard", http.StatusInternalServerError)
		return
	}
	if leaderboard == nil {
		http.Error(w, "Leaderboard not found", http.StatusNotFound)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	standings, err := e.repo.GetStandings(r.Context(), leaderboardID, limit)
	if err != nil {
		slog.Error("Failed to get standings", "error", err, "leaderboard_id", leaderboardID)
		http.Error(w, "Failed to get standings", http.StatusInternalServerError)
		return
	}

	for i := range standings {
		standings[i].BestRank = scoring.RankFor(standings[i].BestTotal)
	}

	response := StandingsResponse{
		LeaderboardID: leaderboardID,
		Standings:     standings,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)

	slog.Info("Standings retrieved", "leaderboard_id", leaderboardID, "count", len(standings))
}

func (e *PlayEndpoints) ListRoundsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	rounds, err := e.repo.GetRoundsForPlayer(r.Context(), user.ID)
	if err != nil {
		slog.Error("Failed to get rounds", "error", err, "player_id", user.ID)
		http.Error(w, "Failed to get rounds", http.StatusInternalServerError)
		return
	}

	response := ListRoundsResponse{
		Rounds: rounds,
		Count:  len(rounds),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (e *PlayEndpoints) GetRoundHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	roundID := chi.URLParam(r, "id")
	if roundID == "" {
		http.Error(w, "Round ID is required", http.StatusBadRequest)
		return
	}

	round, err := e.repo.GetRoundWithDetails(r.Context(), roundID, user.ID)
	if err != nil {
		slog.Error("Failed to get round", "error", err, "round_id", roundID, "player_id", user.ID)
		http.Error(w, "Failed to get round", http.StatusInternalServerError)
		return
	}
	if round == nil {
		http.Error(w, "Round not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"round": round,
	})
}

// GetImageHandler streams a stored image (an original or an AI interpretation)
// by its object key. Keys look like "images/<uuid>", so the route captures two
// path segments.
func (e *PlayEndpoints) GetImageHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "bucket") + "/" + chi.URLParam(r, "id")

	data, err := e.images.Get(r.Context(), key)
	if err != nil {
		slog.Error("Failed to get image", "error", err, "key", key)
		http.Error(w, "Image not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(data)
}
