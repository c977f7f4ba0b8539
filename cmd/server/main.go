package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/openvtt/battlemap-engine/internal/battlemap"
	"github.com/openvtt/battlemap-engine/internal/session"
	"github.com/openvtt/battlemap-engine/internal/storage/memory"
	"github.com/openvtt/battlemap-engine/internal/storage/sqlite"
	"github.com/openvtt/battlemap-engine/internal/ws"
)

type config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	DatabasePath    string        `env:"DATABASE_PATH" envDefault:""`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
}

// roleDirectory records the role each user claimed when connecting. It
// stands in for a campaign membership service; the trust boundary is the
// connect query until one fronts this server.
type roleDirectory struct {
	mu      sync.Mutex
	masters map[string]map[string]bool
}

func newRoleDirectory() *roleDirectory {
	return &roleDirectory{masters: make(map[string]map[string]bool)}
}

func (d *roleDirectory) claim(sessionID, userID string, master bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	users, ok := d.masters[sessionID]
	if !ok {
		users = make(map[string]bool)
		d.masters[sessionID] = users
	}
	users[userID] = master
}

func (d *roleDirectory) IsUserMaster(ctx context.Context, sessionID, userID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.masters[sessionID][userID], nil
}

func (d *roleDirectory) ResolveCharacterForOwner(ctx context.Context, sessionID, userID string) (string, string, error) {
	return "", "", nil
}

func main() {
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		logrus.WithError(err).Fatal("parse config")
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	entry := logrus.NewEntry(log)

	var gateway battlemap.Gateway
	if cfg.DatabasePath != "" {
		db, err := sqlite.Open(cfg.DatabasePath)
		if err != nil {
			entry.WithError(err).Fatal("open database")
		}
		defer db.Close()
		gateway = db
		entry.WithField("path", cfg.DatabasePath).Info("using sqlite storage")
	} else {
		gateway = memory.NewStore()
		entry.Warn("no DATABASE_PATH configured, state will not survive restarts")
	}

	store := battlemap.NewStore(gateway, entry)
	roles := newRoleDirectory()
	coordinator := session.NewCoordinator(store, roles, entry)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		sessionID := query.Get("session")
		userID := query.Get("user")
		if sessionID == "" || userID == "" {
			http.Error(w, "session and user are required", http.StatusBadRequest)
			return
		}
		roles.claim(sessionID, userID, query.Get("role") == "dm")

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		client := ws.NewClient(conn)
		connID := uuid.NewString()

		connLog := entry.WithFields(logrus.Fields{
			"session": sessionID,
			"user":    userID,
			"conn":    connID,
		})
		if err := coordinator.Join(r.Context(), sessionID, userID, connID, client, query.Get("character")); err != nil {
			connLog.WithError(err).Warn("join session")
			client.Close()
			return
		}
		connLog.Info("connected")

		go func() {
			defer func() {
				coordinator.Leave(context.Background(), sessionID, connID)
				client.Close()
				connLog.Info("disconnected")
			}()
			for {
				_, data, err := conn.Read(context.Background())
				if err != nil {
					return
				}
				coordinator.HandleIntent(context.Background(), sessionID, userID, connID, data)
			}
		}()
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	go func() {
		entry.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			entry.WithError(err).Fatal("http server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	entry.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		entry.WithError(err).Error("shutdown http server")
	}
	coordinator.Shutdown(ctx)
}
