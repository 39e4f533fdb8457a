package api

import (
	"log"
	"net/http"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/silvercare/silvercare-server/service/availability"
	"github.com/silvercare/silvercare-server/service/booking"
	"github.com/silvercare/silvercare-server/service/center"
	"github.com/silvercare/silvercare-server/service/matching"
	notification "github.com/silvercare/silvercare-server/service/notifications"
	"github.com/silvercare/silvercare-server/service/review"
	"github.com/silvercare/silvercare-server/service/trainer"
	"github.com/silvercare/silvercare-server/service/user"
	"github.com/silvercare/silvercare-server/service/ws"
)

type APIServer struct {
	address string
	db      *gorm.DB
	watcher *matching.Watcher
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	matchCfg, err := matching.LoadConfig()
	if err != nil {
		return err
	}

	notifier := notification.NewPushNotifier(s.db)
	hub := ws.NewHub()
	engine := matching.NewEngine(matching.NewGormStore(s.db), notifier, hub, matchCfg)

	s.watcher = matching.NewWatcher(engine, matchCfg)
	s.watcher.Start()
	defer s.watcher.Stop()

	userHandler := user.NewHandler(s.db)
	userHandler.RegisterRoutes(subrouter)

	trainerHandler := trainer.NewTrainerHandler(s.db)
	trainerHandler.RegisterRoutes(subrouter)

	bookingHandler := booking.NewBookingHandler(s.db, engine)
	bookingHandler.RegisterRoutes(subrouter)

	matchingHandler := matching.NewMatchingHandler(engine)
	matchingHandler.RegisterRoutes(subrouter)

	availabilityHandler := availability.NewAvailabilityHandler(s.db)
	availabilityHandler.RegisterRoutes(subrouter)

	reviewHandler := review.NewReviewHandler(s.db)
	reviewHandler.RegisterRoutes(subrouter)

	centerHandler := center.NewCenterHandler(s.db)
	centerHandler.RegisterRoutes(subrouter)

	notificationHandler := notification.NewNotificationHandler(s.db, notifier)
	notificationHandler.RegisterRoutes(subrouter)

	hub.RegisterRoutes(router)

	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins([]string{"*"}),
		gorillahandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Payment-Signature"}),
	)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, gorillahandlers.LoggingHandler(log.Writer(), cors(router)))
}
