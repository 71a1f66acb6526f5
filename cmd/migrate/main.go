package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jimmy058910/replitballgame-sub015/internal/clock"
	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/pkg/config"
	"github.com/jimmy058910/replitballgame-sub015/pkg/database"
	"github.com/jimmy058910/replitballgame-sub015/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		logrus.Fatal("Usage: migrate [up|down|seed]")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logger.InitLogger("", cfg.IsDevelopment())

	// Connect to database
	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment(), cfg.MaxConcurrentMatches)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	command := os.Args[1]

	switch command {
	case "up":
		if err := runMigrations(db); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Info("Migrations completed successfully")

	case "down":
		if err := dropTables(db); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		log.Info("Tables dropped successfully")

	case "seed":
		if err := seedData(db, log); err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
		log.Info("Data seeded successfully")

	default:
		log.Fatalf("Unknown command: %s", command)
	}
}

func runMigrations(db *database.DB) error {
	// Auto migrate all models
	if err := db.AutoMigrate(
		&models.Season{},
		&models.Team{},
		&models.Player{},
		&models.Game{},
		&models.Tournament{},
		&models.TournamentEntry{},
		&models.InventoryItem{},
		&models.StepMarker{},
	); err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}

	// Create indexes gorm tags cannot express
	indexes := []string{
		// At most one active season, enforced by the database itself.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_seasons_single_active ON seasons(is_active) WHERE is_active",
		// The scheduler sweep scans for due scheduled games every minute.
		"CREATE INDEX IF NOT EXISTS idx_games_due ON games(status, game_date)",
		"CREATE INDEX IF NOT EXISTS idx_games_season_day ON games(season_id, game_day)",
		"CREATE INDEX IF NOT EXISTS idx_teams_standings ON teams(division, subdivision, points DESC)",
		"CREATE INDEX IF NOT EXISTS idx_players_team_retired ON players(team_id, is_retired)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func dropTables(db *database.DB) error {
	// Drop tables in reverse order to handle foreign key constraints
	tables := []string{
		"step_markers",
		"inventory_items",
		"tournament_entries",
		"tournaments",
		"games",
		"players",
		"teams",
		"seasons",
	}

	for _, table := range tables {
		if err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)).Error; err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}

	return nil
}

var seedCities = []string{
	"Oakland", "Midland", "Harbor", "Valley", "Crescent", "Iron", "Summit", "Pinnacle",
	"Lakeside", "Redwood", "Granite", "Meridian", "Frontier", "Cascade", "Aurora", "Sterling",
}

var seedMascots = []string{
	"Cyclones", "Reapers", "Kites", "Sentinels", "Wardens", "Drakes", "Heralds", "Nomads",
	"Talons", "Mariners", "Foxes", "Wraiths", "Lancers", "Badgers", "Gryphons", "Pioneers",
}

// seedData provisions a full demo league: an active season starting today,
// eight divisions of eight teams with rosters, and enough AI teams to fill
// short tournament fields.
func seedData(db *database.DB, log *logrus.Logger) error {
	rng := rand.New(rand.NewSource(42))

	season := &models.Season{
		Name:       "Season 1",
		StartDate:  clock.EffectiveDate(time.Now()).Add(8 * time.Hour),
		CurrentDay: 1,
		Phase:      string(clock.PhaseRegular),
		IsActive:   true,
	}
	if err := db.Create(season).Error; err != nil {
		return fmt.Errorf("failed to create season: %w", err)
	}

	teamCount, playerCount := 0, 0
	for division := 1; division <= 8; division++ {
		for slot := 0; slot < 8; slot++ {
			idx := (division-1)*8 + slot
			team := &models.Team{
				Name:        fmt.Sprintf("%s %s", seedCities[idx%len(seedCities)], seedMascots[idx/len(seedCities)]),
				Division:    division,
				Subdivision: "main",
				Credits:     50000,
				Gems:        100,
				// The last three slots per division are the AI fill pool.
				IsAI: slot >= 5,
			}
			if team.IsAI {
				team.Credits = 25000
				team.Gems = 0
			}
			if err := db.Create(team).Error; err != nil {
				return fmt.Errorf("failed to create team %s: %w", team.Name, err)
			}
			teamCount++

			players := seedRoster(rng, team, division)
			if err := db.Create(&players).Error; err != nil {
				return fmt.Errorf("failed to create roster for %s: %w", team.Name, err)
			}
			playerCount += len(players)

			if !team.IsAI {
				item := &models.InventoryItem{
					TeamID:   team.ID,
					ItemType: models.ItemTournamentEntry,
					Quantity: 3,
				}
				if err := db.Create(item).Error; err != nil {
					return fmt.Errorf("failed to grant entry items to %s: %w", team.Name, err)
				}
			}
		}
	}

	log.Infof("Seeded season %q with %d teams and %d players", season.Name, teamCount, playerCount)
	return nil
}

// seedRoster builds eight players whose strength tracks the division tier:
// division 1 rosters rate well above division 8 ones.
func seedRoster(rng *rand.Rand, team *models.Team, division int) []models.Player {
	base := 30 - 2*division
	players := make([]models.Player, 0, 8)
	for i := 0; i < 8; i++ {
		roll := func() int {
			return models.ClampAttribute(base + rng.Intn(9) - 2)
		}
		players = append(players, models.Player{
			TeamID:         team.ID,
			Name:           fmt.Sprintf("%s %d", team.Name, i+1),
			Age:            19 + rng.Intn(16),
			Speed:          roll(),
			Power:          roll(),
			Agility:        roll(),
			Throwing:       roll(),
			Catching:       roll(),
			Kicking:        roll(),
			Stamina:        roll(),
			Leadership:     roll(),
			PotentialStars: float64(rng.Intn(9)+2) / 2,
		})
	}
	return players
}
