package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/user/quill-go/apperror"
	"github.com/user/quill-go/auth"
	"github.com/user/quill-go/posts"
	"github.com/user/quill-go/users"
)

// routes builds the HTTP handler for the whole API.
func (a *application) routes() http.Handler {
	r := chi.NewRouter()

	// Chi requires all middleware to be registered before any routes.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(auth.RequestLogger(a.logger))
	r.Use(accessLog)
	r.Use(recoverPanics)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(a.cfg.Server.ClientURL, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		auth.WriteError(w, r, apperror.NewNotFoundError(fmt.Sprintf("Not Found - %s", r.URL.Path), nil))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		auth.WriteJSON(w, http.StatusMethodNotAllowed, apperror.ErrorResponse{Message: "Method not allowed."})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Successful!!"))
	})

	r.Handle("/uploads/*", http.StripPrefix("/uploads/", noDirListing(http.FileServer(http.Dir(a.assets.Dir())))))

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// The event stream is long-lived and stays outside the request timeout.
	r.Get("/api/events", a.stream.ServeHTTP)

	guard := auth.Guard(a.creds)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(a.cfg.Server.RequestTimeout))
		r.Route("/api/users", func(r chi.Router) {
			users.NewUserHandlers(a.users).RegisterRoutes(r, guard, a.throttle)
		})
		r.Route("/api/posts", func(r chi.Router) {
			posts.NewPostHandler(a.posts).RegisterRoutes(r, guard)
		})
	})

	return r
}

// noDirListing hides directory indexes under /uploads.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			auth.WriteError(w, r, apperror.NewNotFoundError(fmt.Sprintf("Not Found - /uploads/%s", r.URL.Path), nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// accessLog logs one line per request through the request-scoped logger.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			auth.LoggerFromContext(r.Context()).WithFields(logrus.Fields{
				"status":   ww.Status(),
				"bytes":    ww.BytesWritten(),
				"duration": time.Since(start).String(),
			}).Info("Request handled")
		}()
		next.ServeHTTP(ww, r)
	})
}

// recoverPanics converts a panic into a 500 JSON response.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				err := apperror.NewInternalError("Something went wrong.", fmt.Errorf("panic: %v", rvr))
				auth.WriteError(w, r, err)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
