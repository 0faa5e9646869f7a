package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"tablebook/internal/reservations"
	"tablebook/internal/shared/config"
	"tablebook/internal/shared/database"
	"tablebook/internal/tables"
	"tablebook/pkg/logger"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

type Seeder struct {
	db       *database.DB
	tables   tables.Repository
	service  reservations.Service
	business uuid.UUID
	loc      *time.Location
}

func main() {
	var businessFlag string
	var clean bool
	flag.StringVar(&businessFlag, "business", "", "business id to seed (random when empty)")
	flag.BoolVar(&clean, "clean", true, "remove the business's tables and reservations first")
	flag.Parse()

	_ = godotenv.Load()
	fmt.Println("Starting TableBook seeder...")

	cfg := config.Load()
	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	business := uuid.New()
	if businessFlag != "" {
		if business, err = uuid.Parse(businessFlag); err != nil {
			log.Fatalf("Invalid -business: %v", err)
		}
	}

	tableRepo := tables.NewRepository(db.GetSQL())
	s := &Seeder{
		db:     db,
		tables: tableRepo,
		// events go nowhere: no feed is listening to a seeding run
		service: reservations.NewService(
			reservations.NewRepository(db.GetSQL()),
			tableRepo,
			nil,
			nil,
			reservations.OptionsFromConfig(cfg.Reservations),
			logger.Discard(),
		),
		business: business,
		loc:      cfg.Reservations.Location(),
	}

	ctx := context.Background()
	if clean {
		fmt.Println("\nCleaning business data...")
		if err := s.Clean(ctx); err != nil {
			log.Fatalf("Failed to clean: %v", err)
		}
	}

	fmt.Println("\nSeeding tables...")
	if err := s.SeedTables(ctx); err != nil {
		log.Fatalf("Failed to seed tables: %v", err)
	}

	fmt.Println("\nSeeding reservations...")
	if err := s.SeedReservations(ctx); err != nil {
		log.Fatalf("Failed to seed reservations: %v", err)
	}

	fmt.Printf("\nSeeding completed. Business id: %s\n", business)
}

// Clean removes the business's reservations and tables
func (s *Seeder) Clean(ctx context.Context) error {
	return s.db.GetSQL().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("business_id = ?", s.business).Delete(&reservations.Reservation{}).Error; err != nil {
			return fmt.Errorf("delete reservations: %w", err)
		}
		if err := tx.Where("business_id = ?", s.business).Delete(&tables.Table{}).Error; err != nil {
			return fmt.Errorf("delete tables: %w", err)
		}
		return nil
	})
}

func (s *Seeder) SeedTables(ctx context.Context) error {
	plan := []struct {
		floor string
		seats []int
	}{
		{"Main Hall", []int{2, 2, 4, 4, 4, 6}},
		{"Terrace", []int{2, 4, 8}},
		{"Private Room", []int{12}},
	}

	number := 1
	for _, floor := range plan {
		for _, seats := range floor.seats {
			t := &tables.Table{
				BusinessID:  s.business,
				FloorName:   floor.floor,
				TableNumber: number,
				Seats:       seats,
				Active:      true,
			}
			if err := s.tables.Create(ctx, t); err != nil {
				return fmt.Errorf("create table %d: %w", number, err)
			}
			fmt.Printf("  Table %-2d %-12s %2d seats\n", number, floor.floor, seats)
			number++
		}
	}
	return nil
}

// SeedReservations books a few evenings ahead; one request deliberately collides
// to show the conflict check at work.
func (s *Seeder) SeedReservations(ctx context.Context) error {
	base := time.Now().In(s.loc).AddDate(0, 0, 3)

	samples := []reservations.CreateReservationRequest{
		{TableNumber: 3, CustomerName: "Nimal Perera", CustomerNumber: "+94771234567", GroupSize: 4, SlotType: "casual", StartTime: "6:00 PM"},
		{TableNumber: 3, CustomerName: "Kasun Silva", CustomerNumber: "+94772345678", GroupSize: 3, SlotType: "casual", StartTime: "7:00 PM"},
		{TableNumber: 9, CustomerUsername: "ayesha.f", GroupSize: 6, SlotType: "fine_dining", StartTime: "7:30 PM"},
		{TableNumber: 10, CustomerName: "Perera family", CustomerNumber: "+94773456789", GroupSize: 11, SlotType: "buffet", StartTime: "12:30 PM"},
		{TableNumber: 1, CustomerUsername: "dilan_r", GroupSize: 2, SlotType: "casual", StartTime: "8:15 PM", EndTime: "9:45 PM"},
		// same evening as the 7:00 PM booking on table 3, and overlapping it
		{TableNumber: 3, CustomerName: "Late Walk-in", CustomerNumber: "+94774567890", GroupSize: 2, SlotType: "casual", StartTime: "6:30 PM"},
	}

	for i, req := range samples {
		req.BusinessID = s.business.String()
		req.EndDate = base.AddDate(0, 0, i%2).Format("2006-01-02")

		res, err := s.service.CreateReservation(ctx, req)
		if errors.Is(err, reservations.ErrConflict) {
			fmt.Printf("  Refused: %v\n", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("create reservation %d: %w", i+1, err)
		}
		fmt.Printf("  Booked table %d on %s %s-%s (%s)\n", res.TableNumber, res.Date, res.StartTime, res.EndTime, res.ID)
	}
	return nil
}
