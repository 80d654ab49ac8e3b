// Package main runs the cyphergres HTTP service: translation always,
// execution when a database is configured.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"

	"github.com/sirupsen/logrus"

	cyphergres "github.com/ritamzico/cyphergres"
	"github.com/ritamzico/cyphergres/internal/config"
	"github.com/ritamzico/cyphergres/internal/pgdriver"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type translateRequest struct {
	Query  string         `json:"query"`
	Params map[string]any `json:"params"`
	Group  string         `json:"group_id"`
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatal(err)
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	var driver *pgdriver.Driver
	if cfg.DatabaseURL != "" {
		driver, err = pgdriver.Open(cfg.DatabaseURL, cfg.GroupID, log)
		if err != nil {
			log.Fatal(err)
		}
		defer driver.Close()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/translate", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeRequest(w, r)
		if !ok {
			return
		}
		group := req.Group
		if group == "" {
			group = cfg.GroupID
		}
		sqlText, params, err := cyphergres.Translate(req.Query, req.Params, group)
		if err != nil {
			writeTranslateError(w, log, err)
			return
		}
		if params == nil {
			params = []any{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"sql": sqlText, "params": params})
	})

	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		if driver == nil {
			writeError(w, http.StatusServiceUnavailable, "no database configured")
			return
		}
		req, ok := decodeRequest(w, r)
		if !ok {
			return
		}
		rows, err := driver.QueryCypher(context.Background(), req.Query, req.Params)
		if err != nil {
			writeTranslateError(w, log, err)
			return
		}
		if rows == nil {
			rows = []map[string]any{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
	})

	log.WithField("addr", cfg.ListenAddr).Info("listening")
	if err := http.ListenAndServe(cfg.ListenAddr, logRequests(log, mux)); err != nil {
		log.Fatal(err)
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (translateRequest, bool) {
	var req translateRequest
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "missing query")
		return req, false
	}
	return req, true
}

func writeTranslateError(w http.ResponseWriter, log *logrus.Logger, err error) {
	var parseErr *cyphergres.ParseError
	var genErr *cyphergres.GenerationError
	switch {
	case errors.As(err, &parseErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":    parseErr.Message,
			"line":     parseErr.Line,
			"column":   parseErr.Column,
			"expected": parseErr.Expected,
		})
	case errors.As(err, &genErr):
		writeError(w, http.StatusUnprocessableEntity, genErr.Error())
	default:
		log.WithError(err).Error("query failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func logRequests(log *logrus.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Debug("request")
		next.ServeHTTP(w, r)
	})
}
