package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"quiz-room-service/internal/app"
	"quiz-room-service/internal/config"
	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/infra/memory"
	pgloader "quiz-room-service/internal/infra/postgres"
	infraredis "quiz-room-service/internal/infra/redis"
	transport "quiz-room-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store app.RoomStore
	if redisClient != nil {
		finishedTTL := config.TTLDuration(cfg.Redis.FinishedTTL, time.Hour)
		store = infraredis.NewRoomStore(redisClient, finishedTTL)
	} else {
		store = memory.NewRoomStore()
	}

	scheduler := app.NewTimerScheduler()
	defer scheduler.Close()

	gameCfg := app.GameConfig{
		Countdown:    config.Seconds(cfg.Game.CountdownSeconds, app.DefaultGameConfig.Countdown),
		ResultsDelay: config.Seconds(cfg.Game.ResultsSeconds, app.DefaultGameConfig.ResultsDelay),
		Scoring:      domain.ScoreConfig{BasePoints: cfg.Game.BasePoints, MinPoints: cfg.Game.MinPoints},
	}
	rooms := app.NewRoomService(store)
	games := app.NewGameService(store, quizRepo, scheduler, gameCfg)
	rooms.SetQuorumNotifier(games.CheckQuorum)
	wsHandler := transport.NewWSHandler(rooms, games)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz room service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes provides demo content for running without postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"demo": {
			ID:    "demo",
			Title: "Demo quiz",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Kind:   domain.KindMultipleChoice,
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{Text: "3"},
						{Text: "4", Correct: true},
						{Text: "5"},
					},
					Points: 1,
				},
				{
					ID:          "q2",
					Kind:        domain.KindBoolean,
					Prompt:      "Hanoi is the capital of Vietnam.",
					CorrectBool: true,
					Points:      1,
				},
				{
					ID:              "q3",
					Kind:            domain.KindShortAnswer,
					Prompt:          "Which planet is known as the red planet?",
					CorrectText:     "Mars",
					AcceptedAnswers: []string{"planet mars"},
					Points:          1,
				},
			},
		},
	}
}
