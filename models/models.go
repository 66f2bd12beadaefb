package models

// This file serves as the central export point for all database models
// Import this package to access all model types

// All models are automatically exported from their respective files:
// - User, RefreshToken from user.go
// - Leaderboard, Standing from leaderboard.go
// - Round, Generation, Score from round.go
// - ChatMessage from chat.go

// Database schema overview:
// 1. users - Managed by cookie-based authentication
// 2. leaderboards - One original image plus its reference description and keywords
// 3. rounds - Records each play attempt, linking a player and a leaderboard
// 4. generations - One submitted sentence per round attempt and everything derived from it
// 5. chat_messages - Stores the ordered hint/feedback conversation of a round
