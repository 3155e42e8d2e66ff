package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/2beens/coachprogress/internal/config"
	"github.com/2beens/coachprogress/internal/db"
	"github.com/2beens/coachprogress/internal/logging"
	"github.com/2beens/coachprogress/internal/progress"
	"github.com/2beens/coachprogress/internal/progress/cycle"
	"github.com/2beens/coachprogress/internal/progress/events"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// progress_seed starts an enrollment on behalf of its owner and materializes its progress rows.
// With -dry-run it only reports the rows it would create.
func main() {
	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	envFile := flag.String("env-file", ".env", "optional dotenv file with secrets")
	enrollmentID := flag.Int64("enrollment", 0, "id of the enrollment to start")
	startDate := flag.String("start", "", "start date (YYYY-MM-DD), defaults to today in the configured timezone")
	dryRun := flag.Bool("dry-run", false, "only print the rows that would be seeded")
	flag.Parse()

	_ = godotenv.Load(*envFile)

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		log.Fatalf("load config: %s", err)
	}

	closeLogs := logging.Setup(logging.LoggerSetupParams{
		LogToStdout: true,
		LogLevel:    cfg.LogLevel,
		Environment: cfg.Environment,
	})
	defer closeLogs()

	if *enrollmentID <= 0 {
		log.Fatalln("enrollment id not set, use -enrollment")
	}

	resolver, err := cycle.NewResolverForZone(cfg.Timezone)
	if err != nil {
		log.Fatalf("plan day resolver: %s", err)
	}
	start := resolver.Today(time.Now())
	if *startDate != "" {
		start, err = cycle.ParseDate(*startDate)
		if err != nil {
			log.Fatalf("start date [%s]: %s", *startDate, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:     cfg.PostgresHost,
		DBPort:     cfg.PostgresPort,
		DBName:     cfg.PostgresDBName,
		DBUser:     os.Getenv("COACHPROGRESS_DB_USER"),
		DBPassword: os.Getenv("COACHPROGRESS_DB_PASS"),
	})
	if err != nil {
		log.Fatalf("new db pool: %s", err)
	}
	defer dbPool.Close()

	repo := progress.NewRepo(dbPool)
	enrollment, err := repo.GetEnrollment(ctx, *enrollmentID)
	if err != nil {
		log.Fatalf("get enrollment [%d]: %s", *enrollmentID, err)
	}

	if *dryRun {
		activity, err := repo.GetActivity(ctx, enrollment.ActivityID)
		if err != nil {
			log.Fatalf("get activity [%d]: %s", enrollment.ActivityID, err)
		}
		rows, err := progress.SeedRows(activity, start, enrollment.ExpirationDate)
		if err != nil {
			log.Fatalf("build seed rows: %s", err)
		}
		for _, row := range rows {
			fmt.Printf("%s\t%s\n", cycle.FormatDate(row.Date), row.Pending)
		}
		fmt.Printf("would seed [%d] rows for enrollment [%d]\n", len(rows), enrollment.ID)
		return
	}

	// the events land in the event log, the service dispatcher publishes them
	eventsService := events.NewService(events.NewRepo(dbPool))
	service := progress.NewService(repo, nil, eventsService, resolver, nil)
	result, err := service.StartEnrollment(ctx, enrollment.UserID, enrollment.ID, start)
	if err != nil {
		log.Errorf("start enrollment [%d]: %s", enrollment.ID, err)
		os.Exit(1)
	}
	fmt.Printf("enrollment [%d] started on [%s], seeded [%d] rows\n",
		result.Enrollment.ID, cycle.FormatDate(start), result.Seeded)
}
