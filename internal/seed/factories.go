// Package seed provides helpers to create test and demo data for the
// application database. These helpers are intended for development and
// testing only.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"sameem/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by seed presets and tests.
type Factory struct {
	db   *gorm.DB
	opts SeedOptions
	// synthetic ID counter when running in DryRun mode
	nextID uint
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts SeedOptions) *Factory {
	// seed gofakeit for richer content
	gofakeit.Seed(time.Now().UnixNano())
	return &Factory{db: db, opts: opts, nextID: 1000}
}

// CreateUser constructs and persists a sample `models.User` together with
// its username reservation. Optional override functions may modify the
// generated user before saving.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	handle := strings.ToLower(fmt.Sprintf("%s%d", gofakeit.Username(), gofakeit.Number(100, 999)))
	handle = sanitizeHandle(handle)

	user := &models.User{
		Username:    handle,
		Email:       gofakeit.Email(),
		DisplayName: gofakeit.Name(),
		Avatar:      fmt.Sprintf("https://i.pravatar.cc/150?u=%s", gofakeit.UUID()),
	}

	// Password handling: allow skipping bcrypt in dev fast mode
	if f.opts.SkipBcrypt {
		user.Password = "SeedPassword123!"
	} else {
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("SeedPassword123!"), bcrypt.DefaultCost)
		user.Password = string(hashedPassword)
	}

	for _, override := range overrides {
		override(user)
	}

	if f.opts.DryRun {
		f.nextID++
		user.ID = f.nextID
		log.Printf("[dry-run] CreateUser: %s <%s>", user.Username, user.Email)
		return user, nil
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	reservation := models.UsernameReservation{Name: user.Username, UserID: user.ID}
	if err := f.db.Create(&reservation).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateFriendship persists a friendship between two users.
func (f *Factory) CreateFriendship(requester, addressee *models.User, status models.FriendshipStatus) error {
	friendship := &models.Friendship{
		RequesterID: requester.ID,
		AddresseeID: addressee.ID,
		Status:      status,
	}
	if f.opts.DryRun {
		log.Printf("[dry-run] CreateFriendship: %d -> %d (%s)", requester.ID, addressee.ID, status)
		return nil
	}
	return f.db.Create(friendship).Error
}

// CreateMessage constructs and persists a sample direct message between the
// two users, backdated within the configured spread.
func (f *Factory) CreateMessage(from, to *models.User, overrides ...func(*models.Message)) (*models.Message, error) {
	message := &models.Message{
		ConversationKey: models.ConversationKey(from.ID, to.ID),
		FromID:          from.ID,
		ToID:            to.ID,
		Text:            gofakeit.Sentence(10),
		Type:            models.MessageTypeText,
		Status:          models.MessageStatusRead,
		CreatedAt:       f.backdated(),
	}

	for _, override := range overrides {
		override(message)
	}

	if f.opts.DryRun {
		f.nextID++
		message.ID = f.nextID
		log.Printf("[dry-run] CreateMessage: %d -> %d %q", from.ID, to.ID, message.Text)
		return message, nil
	}

	if err := f.db.Create(message).Error; err != nil {
		return nil, err
	}
	return message, nil
}

// CreateMessagesBatch persists multiple messages in a single DB call.
func (f *Factory) CreateMessagesBatch(messages []*models.Message) error {
	if len(messages) == 0 {
		return nil
	}
	if f.opts.DryRun {
		for _, m := range messages {
			f.nextID++
			m.ID = f.nextID
		}
		log.Printf("[dry-run] CreateMessagesBatch: %d messages (no DB write)", len(messages))
		return nil
	}
	return f.db.Create(&messages).Error
}

// CreateCallLogPair persists the two asymmetric history rows one finished
// call leaves behind, one for each participant.
func (f *Factory) CreateCallLogPair(caller, callee *models.User, callType string, durationSeconds int) error {
	createdAt := f.backdated()
	rows := []*models.CallLog{
		{
			UserID:          caller.ID,
			PartnerID:       callee.ID,
			PartnerUsername: callee.Username,
			Type:            callType,
			Direction:       models.CallDirectionOutgoing,
			DurationSeconds: &durationSeconds,
			CreatedAt:       createdAt,
		},
		{
			UserID:          callee.ID,
			PartnerID:       caller.ID,
			PartnerUsername: caller.Username,
			Type:            callType,
			Direction:       models.CallDirectionIncoming,
			DurationSeconds: &durationSeconds,
			CreatedAt:       createdAt,
		},
	}
	if f.opts.DryRun {
		log.Printf("[dry-run] CreateCallLogPair: %d <-> %d (%s, %ds)", caller.ID, callee.ID, callType, durationSeconds)
		return nil
	}
	return f.db.Create(&rows).Error
}

// CreateReport persists a pending report filed by `reporter` against one of
// `reported`'s messages.
func (f *Factory) CreateReport(reporter, reported *models.User, message *models.Message) (*models.Report, error) {
	report := &models.Report{
		ConversationKey: message.ConversationKey,
		MessageID:       message.ID,
		MessageText:     message.Text,
		ReportedID:      reported.ID,
		ReporterID:      reporter.ID,
		Reason:          gofakeit.Sentence(6),
		Status:          models.ReportStatusPending,
	}
	if f.opts.DryRun {
		f.nextID++
		report.ID = f.nextID
		log.Printf("[dry-run] CreateReport: %d reports message %d", reporter.ID, message.ID)
		return report, nil
	}
	if err := f.db.Create(report).Error; err != nil {
		return nil, err
	}
	return report, nil
}

// backdated returns a timestamp spread over the configured history window so
// seeded conversations look lived-in instead of all landing on one second.
func (f *Factory) backdated() time.Time {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	//nolint:gosec // Weak random number generator is fine for seeding
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	daysBack := r.Intn(maxDays)
	hoursBack := r.Intn(24)
	minsBack := r.Intn(60)
	return time.Now().Add(-time.Duration(daysBack)*24*time.Hour - time.Duration(hoursBack)*time.Hour - time.Duration(minsBack)*time.Minute)
}

// sanitizeHandle squeezes a generated username into the allowed handle
// alphabet: lowercase letters, digits, underscore and dot, 3 to 20 chars.
func sanitizeHandle(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.':
			sb.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			sb.WriteRune(r + ('a' - 'A'))
		}
	}
	out := sb.String()
	if len(out) < 3 {
		out = out + fmt.Sprintf("u%d", gofakeit.Number(100, 999))
	}
	if len(out) > 20 {
		out = out[:20]
	}
	return out
}
