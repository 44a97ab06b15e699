// Command seed populates the database with demo accounts and chat history.
package main

import (
	"flag"
	"log"

	"sameem/internal/config"
	"sameem/internal/database"
	"sameem/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 25, "Number of users to create")
	messagesPerPair := flag.Int("messages", 12, "Average messages per friended pair")
	density := flag.Float64("density", 0.3, "Chance that any two users are friends (0..1)")
	maxDays := flag.Int("days", 90, "Spread history over this many days")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	skipBcrypt := flag.Bool("fast", false, "Skip bcrypt hashing for faster large seeds")
	dryRun := flag.Bool("dry-run", false, "Log what would be created without writing")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")
	log.Printf("Target: %d users, ~%d messages/pair, density=%.2f, clean=%v\n",
		*numUsers, *messagesPerPair, *density, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	opts := seed.SeedOptions{
		NumUsers:        *numUsers,
		MessagesPerPair: *messagesPerPair,
		FriendDensity:   *density,
		MaxDays:         *maxDays,
		ShouldClean:     *shouldClean,
		SkipBcrypt:      *skipBcrypt,
		DryRun:          *dryRun,
	}
	if err := seed.Seed(db, opts); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✨ All done! Your database is now populated with test data.")
	log.Println("📧 All seeded users have the password: SeedPassword123!")
}
