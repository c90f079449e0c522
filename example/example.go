// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Command example serves a query definitions document over HTTP. Each
// defined query becomes an endpoint: POST /query/{name} with a JSON object
// body runs it and returns the rows.
//
// Configuration comes from the environment (a .env file is loaded when
// present):
//
//	SQLHUB_DATABASE     SQLite database path (default ":memory:")
//	SQLHUB_DEFINITIONS  query definitions document (default "queries.json")
//	SQLHUB_ADDR         listen address (default ":8080")
package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	_ "github.com/mattn/go-sqlite3"

	"github.com/canonical/sqlhub"
)

type server struct {
	db      *sqlhub.DB
	queries *sqlhub.Queries
	logger  *slog.Logger
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := godotenv.Load(); err != nil {
		logger.Warn("no .env file loaded", "error", err)
	}

	database := envOr("SQLHUB_DATABASE", ":memory:")
	definitions := envOr("SQLHUB_DEFINITIONS", "queries.json")
	addr := envOr("SQLHUB_ADDR", ":8080")

	queries, err := sqlhub.ParseFile(definitions)
	if err != nil {
		logger.Error("failed to load definitions", "path", definitions, "error", err)
		os.Exit(1)
	}
	sqldb, err := sql.Open("sqlite3", database)
	if err != nil {
		logger.Error("failed to open database", "path", database, "error", err)
		os.Exit(1)
	}

	s := &server{
		db:      sqlhub.NewDB(sqldb, sqlhub.SQLite),
		queries: queries,
		logger:  logger,
	}

	router := chi.NewRouter()
	router.Get("/queries", s.handleNames)
	router.Post("/query/{name}", s.handleRun)

	logger.Info("listening", "addr", addr, "queries", len(queries.Names()))
	if err := http.ListenAndServe(addr, router); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *server) handleNames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"queries": s.queries.Names()})
}

func (s *server) handleRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}

	results, err := s.db.Run(r.Context(), s.queries, name, json.RawMessage(body))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"statements": results.Statements,
		"rows":       results.Rows,
	})
}

// statusFor picks the HTTP status matching the error category: unknown
// queries map to 404, bad arguments to 400 and everything else to 500.
func statusFor(err error) int {
	var qerr *sqlhub.Error
	if !errors.As(err, &qerr) {
		return http.StatusInternalServerError
	}
	switch qerr.Code {
	case sqlhub.CodeQueryNotFound:
		return http.StatusNotFound
	case sqlhub.CodeJSON, sqlhub.CodeParameterNotProvided, sqlhub.CodeParameterTypeMismatch:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	} else {
		s.logger.Warn("request rejected", "status", status, "error", err)
	}
	payload := map[string]any{"error": err.Error()}
	var qerr *sqlhub.Error
	if errors.As(err, &qerr) {
		payload["code"] = qerr.Code
		if info, ok := sqlhub.ErrorInfoFor(qerr.Code); ok {
			payload["name"] = info.Name
		}
	}
	s.writeJSON(w, status, payload)
}
