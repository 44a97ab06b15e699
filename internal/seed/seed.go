package seed

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"sameem/internal/models"

	"gorm.io/gorm"
)

// SeedOptions configures the seeder.
type SeedOptions struct {
	// NumUsers is the number of accounts to create.
	NumUsers int
	// MessagesPerPair is the average number of messages per friended pair.
	MessagesPerPair int
	// FriendDensity is the chance (0..1) that any two users are friends.
	FriendDensity float64
	// MaxDays spreads created_at timestamps over this many days back.
	MaxDays int
	// ShouldClean truncates existing data before seeding.
	ShouldClean bool
	// SkipBcrypt stores plaintext passwords to speed up large seeds.
	SkipBcrypt bool
	// DryRun logs what would be created without touching the database.
	DryRun bool
}

// DefaultOptions is a sensible dev-sized seed.
func DefaultOptions() SeedOptions {
	return SeedOptions{
		NumUsers:        25,
		MessagesPerPair: 12,
		FriendDensity:   0.3,
		MaxDays:         90,
	}
}

// Seed populates the database with demo accounts, a friendship mesh, message
// history for each friended pair, and some call history.
func Seed(db *gorm.DB, opts SeedOptions) error {
	log.Printf("🌱 Starting database seeding with %d users...", opts.NumUsers)

	if opts.ShouldClean && !opts.DryRun {
		if err := clearData(db); err != nil {
			log.Println("⚠️  Warning: Could not clear all existing data, but continuing anyway...")
		}
	}

	f := NewFactory(db, opts)
	//nolint:gosec // Weak random number generator is fine for seeding
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	users, err := createUsers(f, opts.NumUsers)
	if err != nil {
		return fmt.Errorf("failed to create users: %w", err)
	}
	log.Printf("✓ %d users created", len(users))

	pairs, err := createFriendshipMesh(f, r, users, opts.FriendDensity)
	if err != nil {
		return fmt.Errorf("failed to create friendships: %w", err)
	}
	log.Printf("✓ %d friendships created", len(pairs))

	messages, err := createConversations(f, r, pairs, opts.MessagesPerPair)
	if err != nil {
		return fmt.Errorf("failed to create messages: %w", err)
	}
	log.Printf("✓ %d messages created", messages)

	calls, err := createCallHistory(f, r, pairs)
	if err != nil {
		return fmt.Errorf("failed to create call logs: %w", err)
	}
	log.Printf("✓ %d calls logged", calls)

	log.Println("🎉 Database seeding completed successfully!")
	return nil
}

func clearData(db *gorm.DB) error {
	log.Println("🗑️  Clearing existing data...")
	sql := `TRUNCATE TABLE reports, call_logs, message_hides, messages, friendships, user_blocks, username_reservations, users RESTART IDENTITY CASCADE;`
	return db.Exec(sql).Error
}

func createUsers(f *Factory, count int) ([]*models.User, error) {
	users := make([]*models.User, 0, count)

	// Always include a known admin and a known test account so the seeded
	// instance can be logged into without digging through the users table.
	wellKnown := []struct {
		username string
		admin    bool
	}{
		{"sameem_admin", true},
		{"test", false},
	}
	for _, w := range wellKnown {
		w := w
		user, err := f.CreateUser(func(u *models.User) {
			u.Username = w.username
			u.Email = fmt.Sprintf("%s@example.com", w.username)
			u.IsAdmin = w.admin
		})
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	for i := len(users); i < count; i++ {
		user, err := f.CreateUser()
		if err != nil {
			// Generated handles can collide; skip and move on.
			log.Printf("Failed to create user: %v", err)
			continue
		}
		users = append(users, user)

		if i%100 == 0 && i > 0 {
			log.Printf("Created %d users...", i)
		}
	}
	return users, nil
}

type friendPair struct {
	a, b *models.User
}

func createFriendshipMesh(f *Factory, r *rand.Rand, users []*models.User, density float64) ([]friendPair, error) {
	if density <= 0 {
		density = 0.3
	}

	var pairs []friendPair
	for i := 0; i < len(users); i++ {
		for j := i + 1; j < len(users); j++ {
			if r.Float64() >= density {
				continue
			}
			status := models.FriendshipStatusAccepted
			// A few requests stay pending so the requests tab has content.
			if r.Float64() < 0.15 {
				status = models.FriendshipStatusPending
			}
			if err := f.CreateFriendship(users[i], users[j], status); err != nil {
				return nil, err
			}
			if status == models.FriendshipStatusAccepted {
				pairs = append(pairs, friendPair{a: users[i], b: users[j]})
			}
		}
	}
	return pairs, nil
}

func createConversations(f *Factory, r *rand.Rand, pairs []friendPair, perPair int) (int, error) {
	if perPair <= 0 {
		perPair = 12
	}

	total := 0
	for _, p := range pairs {
		count := 1 + r.Intn(perPair*2)
		batch := make([]*models.Message, 0, count)
		for i := 0; i < count; i++ {
			from, to := p.a, p.b
			if r.Intn(2) == 0 {
				from, to = to, from
			}
			msg := &models.Message{
				ConversationKey: models.ConversationKey(from.ID, to.ID),
				FromID:          from.ID,
				ToID:            to.ID,
				Text:            conversationLine(r),
				Type:            models.MessageTypeText,
				Status:          models.MessageStatusRead,
				CreatedAt:       f.backdated(),
			}
			batch = append(batch, msg)
		}
		if err := f.CreateMessagesBatch(batch); err != nil {
			return total, err
		}
		total += len(batch)
	}
	return total, nil
}

func createCallHistory(f *Factory, r *rand.Rand, pairs []friendPair) (int, error) {
	total := 0
	for _, p := range pairs {
		// Roughly a third of friended pairs have called each other.
		if r.Float64() >= 0.35 {
			continue
		}
		callType := models.CallTypeVoice
		if r.Intn(2) == 0 {
			callType = models.CallTypeVideo
		}
		caller, callee := p.a, p.b
		if r.Intn(2) == 0 {
			caller, callee = callee, caller
		}
		if err := f.CreateCallLogPair(caller, callee, callType, 30+r.Intn(1800)); err != nil {
			return total, err
		}
		total++
	}
	return total, nil
}
