package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sameem/internal/models"
	"sameem/internal/repository"
)

type userRepoStub struct {
	getByIDFn           func(context.Context, uint) (*models.User, error)
	getByEmailFn        func(context.Context, string) (*models.User, error)
	getByUsernameFn     func(context.Context, string) (*models.User, error)
	createFn            func(context.Context, *models.User) error
	updateFn            func(context.Context, *models.User) error
	updateFieldsFn      func(context.Context, uint, map[string]interface{}) error
	deleteFn            func(context.Context, uint) error
	listFn              func(context.Context, int, int) ([]models.User, error)
	reserveUsernameFn   func(context.Context, string, uint) error
	releaseUsernameFn   func(context.Context, string) error
	renameUserFn        func(context.Context, uint, string, string) error
	blockFn             func(context.Context, uint, uint) error
	unblockFn           func(context.Context, uint, uint) error
	isBlockedFn         func(context.Context, uint, uint) (bool, error)
	isBlockedEitherFn   func(context.Context, uint, uint) (bool, error)
	listBlockedFn       func(context.Context, uint) ([]models.User, error)
	incrementCountersFn func(context.Context, uint, uint) error
	countAllFn          func(context.Context) (int64, error)
	countAdminsFn       func(context.Context) (int64, error)
	countSuspendedFn    func(context.Context) (int64, error)
	signupHistogramFn   func(context.Context, int) ([]repository.SignupBucket, error)
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getByUsernameFn(ctx, username)
}
func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}
func (s *userRepoStub) Update(ctx context.Context, user *models.User) error {
	return s.updateFn(ctx, user)
}
func (s *userRepoStub) UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	return s.updateFieldsFn(ctx, id, fields)
}
func (s *userRepoStub) Delete(ctx context.Context, id uint) error {
	return s.deleteFn(ctx, id)
}
func (s *userRepoStub) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.listFn(ctx, limit, offset)
}
func (s *userRepoStub) ReserveUsername(ctx context.Context, name string, userID uint) error {
	return s.reserveUsernameFn(ctx, name, userID)
}
func (s *userRepoStub) ReleaseUsername(ctx context.Context, name string) error {
	return s.releaseUsernameFn(ctx, name)
}
func (s *userRepoStub) RenameUser(ctx context.Context, userID uint, oldName, newName string) error {
	return s.renameUserFn(ctx, userID, oldName, newName)
}
func (s *userRepoStub) Block(ctx context.Context, userID, blockedID uint) error {
	return s.blockFn(ctx, userID, blockedID)
}
func (s *userRepoStub) Unblock(ctx context.Context, userID, blockedID uint) error {
	return s.unblockFn(ctx, userID, blockedID)
}
func (s *userRepoStub) IsBlocked(ctx context.Context, userID, blockedID uint) (bool, error) {
	return s.isBlockedFn(ctx, userID, blockedID)
}
func (s *userRepoStub) IsBlockedEitherWay(ctx context.Context, a, b uint) (bool, error) {
	return s.isBlockedEitherFn(ctx, a, b)
}
func (s *userRepoStub) ListBlocked(ctx context.Context, userID uint) ([]models.User, error) {
	return s.listBlockedFn(ctx, userID)
}
func (s *userRepoStub) IncrementMessageCounters(ctx context.Context, fromID, toID uint) error {
	return s.incrementCountersFn(ctx, fromID, toID)
}
func (s *userRepoStub) CountAll(ctx context.Context) (int64, error) {
	return s.countAllFn(ctx)
}
func (s *userRepoStub) CountAdmins(ctx context.Context) (int64, error) {
	return s.countAdminsFn(ctx)
}
func (s *userRepoStub) CountSuspended(ctx context.Context) (int64, error) {
	return s.countSuspendedFn(ctx)
}
func (s *userRepoStub) SignupHistogram(ctx context.Context, days int) ([]repository.SignupBucket, error) {
	return s.signupHistogramFn(ctx, days)
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn: func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id}, nil
		},
		getByEmailFn:        func(context.Context, string) (*models.User, error) { return &models.User{}, nil },
		getByUsernameFn:     func(context.Context, string) (*models.User, error) { return &models.User{}, nil },
		createFn:            func(context.Context, *models.User) error { return nil },
		updateFn:            func(context.Context, *models.User) error { return nil },
		updateFieldsFn:      func(context.Context, uint, map[string]interface{}) error { return nil },
		deleteFn:            func(context.Context, uint) error { return nil },
		listFn:              func(context.Context, int, int) ([]models.User, error) { return nil, nil },
		reserveUsernameFn:   func(context.Context, string, uint) error { return nil },
		releaseUsernameFn:   func(context.Context, string) error { return nil },
		renameUserFn:        func(context.Context, uint, string, string) error { return nil },
		blockFn:             func(context.Context, uint, uint) error { return nil },
		unblockFn:           func(context.Context, uint, uint) error { return nil },
		isBlockedFn:         func(context.Context, uint, uint) (bool, error) { return false, nil },
		isBlockedEitherFn:   func(context.Context, uint, uint) (bool, error) { return false, nil },
		listBlockedFn:       func(context.Context, uint) ([]models.User, error) { return nil, nil },
		incrementCountersFn: func(context.Context, uint, uint) error { return nil },
		countAllFn:          func(context.Context) (int64, error) { return 0, nil },
		countAdminsFn:       func(context.Context) (int64, error) { return 0, nil },
		countSuspendedFn:    func(context.Context) (int64, error) { return 0, nil },
		signupHistogramFn:   func(context.Context, int) ([]repository.SignupBucket, error) { return nil, nil },
	}
}

type messageRepoStub struct {
	createFn             func(context.Context, *models.Message) error
	getByIDFn            func(context.Context, uint) (*models.Message, error)
	listConversationFn   func(context.Context, string, uint, int, uint) ([]models.Message, error)
	latestVisibleFn      func(context.Context, string, uint) (*models.Message, error)
	markReadFn           func(context.Context, string, uint) (int64, error)
	editTextFn           func(context.Context, uint, string, time.Time) error
	tombstoneFn          func(context.Context, uint) error
	hideFn               func(context.Context, uint, uint) error
	updateInvitationFn   func(context.Context, uint, string) error
	deleteConversationFn func(context.Context, string) error
}

func (s *messageRepoStub) Create(ctx context.Context, msg *models.Message) error {
	return s.createFn(ctx, msg)
}
func (s *messageRepoStub) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	return s.getByIDFn(ctx, id)
}
func (s *messageRepoStub) ListConversation(ctx context.Context, key string, viewerID uint, limit int, beforeID uint) ([]models.Message, error) {
	return s.listConversationFn(ctx, key, viewerID, limit, beforeID)
}
func (s *messageRepoStub) LatestVisible(ctx context.Context, key string, viewerID uint) (*models.Message, error) {
	return s.latestVisibleFn(ctx, key, viewerID)
}
func (s *messageRepoStub) MarkRead(ctx context.Context, key string, readerID uint) (int64, error) {
	return s.markReadFn(ctx, key, readerID)
}
func (s *messageRepoStub) EditText(ctx context.Context, id uint, text string, editedAt time.Time) error {
	return s.editTextFn(ctx, id, text, editedAt)
}
func (s *messageRepoStub) Tombstone(ctx context.Context, id uint) error {
	return s.tombstoneFn(ctx, id)
}
func (s *messageRepoStub) Hide(ctx context.Context, messageID, userID uint) error {
	return s.hideFn(ctx, messageID, userID)
}
func (s *messageRepoStub) UpdateInvitationStatus(ctx context.Context, id uint, status string) error {
	return s.updateInvitationFn(ctx, id, status)
}
func (s *messageRepoStub) DeleteConversation(ctx context.Context, key string) error {
	return s.deleteConversationFn(ctx, key)
}

func noopMessageRepo() *messageRepoStub {
	return &messageRepoStub{
		createFn: func(_ context.Context, msg *models.Message) error {
			if msg.ID == 0 {
				msg.ID = 1
			}
			return nil
		},
		getByIDFn: func(_ context.Context, id uint) (*models.Message, error) {
			return &models.Message{ID: id}, nil
		},
		listConversationFn: func(context.Context, string, uint, int, uint) ([]models.Message, error) {
			return nil, nil
		},
		latestVisibleFn:      func(context.Context, string, uint) (*models.Message, error) { return nil, nil },
		markReadFn:           func(context.Context, string, uint) (int64, error) { return 0, nil },
		editTextFn:           func(context.Context, uint, string, time.Time) error { return nil },
		tombstoneFn:          func(context.Context, uint) error { return nil },
		hideFn:               func(context.Context, uint, uint) error { return nil },
		updateInvitationFn:   func(context.Context, uint, string) error { return nil },
		deleteConversationFn: func(context.Context, string) error { return nil },
	}
}

type friendRepoStub struct {
	createFn             func(context.Context, *models.Friendship) error
	getByIDFn            func(context.Context, uint) (*models.Friendship, error)
	getBetweenUsersFn    func(context.Context, uint, uint) (*models.Friendship, error)
	getFriendsFn         func(context.Context, uint) ([]models.User, error)
	getPendingRequestsFn func(context.Context, uint) ([]models.Friendship, error)
	getSentRequestsFn    func(context.Context, uint) ([]models.Friendship, error)
	updateStatusFn       func(context.Context, uint, models.FriendshipStatus) error
	deleteFn             func(context.Context, uint) error
	removeBetweenUsersFn func(context.Context, uint, uint) error
}

func (s *friendRepoStub) Create(ctx context.Context, friendship *models.Friendship) error {
	return s.createFn(ctx, friendship)
}
func (s *friendRepoStub) GetByID(ctx context.Context, id uint) (*models.Friendship, error) {
	return s.getByIDFn(ctx, id)
}
func (s *friendRepoStub) GetBetweenUsers(ctx context.Context, userID1, userID2 uint) (*models.Friendship, error) {
	return s.getBetweenUsersFn(ctx, userID1, userID2)
}
func (s *friendRepoStub) GetFriends(ctx context.Context, userID uint) ([]models.User, error) {
	return s.getFriendsFn(ctx, userID)
}
func (s *friendRepoStub) GetPendingRequests(ctx context.Context, userID uint) ([]models.Friendship, error) {
	return s.getPendingRequestsFn(ctx, userID)
}
func (s *friendRepoStub) GetSentRequests(ctx context.Context, userID uint) ([]models.Friendship, error) {
	return s.getSentRequestsFn(ctx, userID)
}
func (s *friendRepoStub) UpdateStatus(ctx context.Context, friendshipID uint, status models.FriendshipStatus) error {
	return s.updateStatusFn(ctx, friendshipID, status)
}
func (s *friendRepoStub) Delete(ctx context.Context, friendshipID uint) error {
	return s.deleteFn(ctx, friendshipID)
}
func (s *friendRepoStub) RemoveBetweenUsers(ctx context.Context, userID1, userID2 uint) error {
	return s.removeBetweenUsersFn(ctx, userID1, userID2)
}

func noopFriendRepo() *friendRepoStub {
	return &friendRepoStub{
		createFn:             func(context.Context, *models.Friendship) error { return nil },
		getByIDFn:            func(context.Context, uint) (*models.Friendship, error) { return &models.Friendship{}, nil },
		getBetweenUsersFn:    func(context.Context, uint, uint) (*models.Friendship, error) { return nil, nil },
		getFriendsFn:         func(context.Context, uint) ([]models.User, error) { return nil, nil },
		getPendingRequestsFn: func(context.Context, uint) ([]models.Friendship, error) { return nil, nil },
		getSentRequestsFn:    func(context.Context, uint) ([]models.Friendship, error) { return nil, nil },
		updateStatusFn:       func(context.Context, uint, models.FriendshipStatus) error { return nil },
		deleteFn:             func(context.Context, uint) error { return nil },
		removeBetweenUsersFn: func(context.Context, uint, uint) error { return nil },
	}
}

type reportRepoStub struct {
	createFn        func(context.Context, *models.Report) error
	getByIDFn       func(context.Context, uint) (*models.Report, error)
	listFn          func(context.Context, string, int, int) ([]models.Report, error)
	updateStatusFn  func(context.Context, uint, string, uint) error
	countByStatusFn func(context.Context, string) (int64, error)
}

func (s *reportRepoStub) Create(ctx context.Context, report *models.Report) error {
	return s.createFn(ctx, report)
}
func (s *reportRepoStub) GetByID(ctx context.Context, id uint) (*models.Report, error) {
	return s.getByIDFn(ctx, id)
}
func (s *reportRepoStub) List(ctx context.Context, status string, limit, offset int) ([]models.Report, error) {
	return s.listFn(ctx, status, limit, offset)
}
func (s *reportRepoStub) UpdateStatus(ctx context.Context, id uint, status string, resolvedBy uint) error {
	return s.updateStatusFn(ctx, id, status, resolvedBy)
}
func (s *reportRepoStub) CountByStatus(ctx context.Context, status string) (int64, error) {
	return s.countByStatusFn(ctx, status)
}

func noopReportRepo() *reportRepoStub {
	return &reportRepoStub{
		createFn: func(_ context.Context, report *models.Report) error {
			if report.ID == 0 {
				report.ID = 1
			}
			return nil
		},
		getByIDFn:       func(_ context.Context, id uint) (*models.Report, error) { return &models.Report{ID: id}, nil },
		listFn:          func(context.Context, string, int, int) ([]models.Report, error) { return nil, nil },
		updateStatusFn:  func(context.Context, uint, string, uint) error { return nil },
		countByStatusFn: func(context.Context, string) (int64, error) { return 0, nil },
	}
}

type callLogRepoStub struct {
	createFn        func(context.Context, *models.CallLog) error
	listFn          func(context.Context, uint, int) ([]models.CallLog, error)
	patchDurationFn func(context.Context, uint, uint, int) error
	deleteForUserFn func(context.Context, uint) error
}

func (s *callLogRepoStub) Create(ctx context.Context, log *models.CallLog) error {
	return s.createFn(ctx, log)
}
func (s *callLogRepoStub) List(ctx context.Context, userID uint, limit int) ([]models.CallLog, error) {
	return s.listFn(ctx, userID, limit)
}
func (s *callLogRepoStub) PatchDuration(ctx context.Context, userID, partnerID uint, seconds int) error {
	return s.patchDurationFn(ctx, userID, partnerID, seconds)
}
func (s *callLogRepoStub) DeleteForUser(ctx context.Context, userID uint) error {
	return s.deleteForUserFn(ctx, userID)
}

func noopCallLogRepo() *callLogRepoStub {
	return &callLogRepoStub{
		createFn:        func(context.Context, *models.CallLog) error { return nil },
		listFn:          func(context.Context, uint, int) ([]models.CallLog, error) { return nil, nil },
		patchDurationFn: func(context.Context, uint, uint, int) error { return nil },
		deleteForUserFn: func(context.Context, uint) error { return nil },
	}
}

// presenceStub marks a fixed set of users online.
type presenceStub struct {
	online map[uint]bool
}

func (p *presenceStub) IsOnline(userID uint) bool { return p.online[userID] }

func (p *presenceStub) OnlineUserIDs(_ context.Context) []uint {
	ids := make([]uint, 0, len(p.online))
	for id, on := range p.online {
		if on {
			ids = append(ids, id)
		}
	}
	return ids
}

// eventsRecorder captures published realtime events.
type eventsRecorder struct {
	mu       sync.Mutex
	chat     []string
	user     []string
	game     []string
	userIDs  []uint
	chatKeys []string
}

func (r *eventsRecorder) PublishChatMessage(_ context.Context, key string, payload string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chatKeys = append(r.chatKeys, key)
	r.chat = append(r.chat, payload)
	return nil
}

func (r *eventsRecorder) PublishUser(_ context.Context, userID uint, payload string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userIDs = append(r.userIDs, userID)
	r.user = append(r.user, payload)
	return nil
}

func (r *eventsRecorder) PublishGameEvent(_ context.Context, key string, payload string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.game = append(r.game, payload)
	return nil
}

func (r *eventsRecorder) chatEvents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.chat))
	copy(out, r.chat)
	return out
}

func (r *eventsRecorder) gameEvents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.game))
	copy(out, r.game)
	return out
}

func assertAppErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	var appErr *models.AppError
	if !errors.As(err, &appErr) || appErr.Code != code {
		t.Fatalf("expected %s app error, got %#v", code, err)
	}
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertAppErrorCode(t, err, "VALIDATION_ERROR")
}
