package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix      = "user:%d"
	UnreadKeyPrefix    = "unread:%d:%s"   // user id, conversation key
	GameKeyPrefix      = "game:%s"        // conversation key
	CallInboxPrefix    = "call:inbox:%d"  // callee id (hash: call id -> session JSON)
	CallICEPrefix      = "call:ice:%s:%s" // call id, role (list of candidate JSON)
	TypingKeyPrefix    = "typing:%s:%d"   // conversation key, user id
	WSTicketPrefix     = "ws_ticket:%s"
	JTIBlacklistPrefix = "jwt_blacklist:%s"
)

const (
	UserTTL     = 5 * time.Minute
	GameTTL     = 24 * time.Hour
	CallTTL     = 2 * time.Hour
	WSTicketTTL = 30 * time.Second
	TypingTTL   = 10 * time.Second
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func UnreadKey(userID uint, conversationKey string) string {
	return fmt.Sprintf(UnreadKeyPrefix, userID, conversationKey)
}

func GameKey(conversationKey string) string {
	return fmt.Sprintf(GameKeyPrefix, conversationKey)
}

func CallInboxKey(calleeID uint) string {
	return fmt.Sprintf(CallInboxPrefix, calleeID)
}

func CallICEKey(callID, role string) string {
	return fmt.Sprintf(CallICEPrefix, callID, role)
}

func TypingKey(conversationKey string, userID uint) string {
	return fmt.Sprintf(TypingKeyPrefix, conversationKey, userID)
}

func WSTicketKey(token string) string {
	return fmt.Sprintf(WSTicketPrefix, token)
}

func JTIBlacklistKey(jti string) string {
	return fmt.Sprintf(JTIBlacklistPrefix, jti)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}
