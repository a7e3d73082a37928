package websocket

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rfq-realtime/core"
)

// memberTTL bounds a membership record to the expected maximum session
// lifetime. Records are refreshed on join and deleted on leave/disconnect.
const memberTTL = time.Hour

// RoomID derives the canonical room identifier for a negotiation context.
// It is a pure, injective function of its inputs: the same pair always yields
// the same identifier and distinct pairs never collide.
func RoomID(quoteID, subQuoteID int64) string {
	return fmt.Sprintf("rfq:%d:%d", quoteID, subQuoteID)
}

// memberKey is the cache key holding one connection's membership record.
func memberKey(roomID, socketID string) string {
	return memberPrefix(roomID) + socketID
}

func memberPrefix(roomID string) string {
	return fmt.Sprintf("room:%s:member:", roomID)
}

// channelForRoom maps a room to its distribution bus channel.
func channelForRoom(roomID string) string {
	return "message:" + roomID
}

// roomFromChannel inverts channelForRoom for inbound bus messages.
func roomFromChannel(channel string) string {
	return strings.TrimPrefix(channel, "message:")
}

// busPattern is the single pattern subscription registered at startup.
const busPattern = "message:*"

// members enumerates the membership records for a room from the cache. With
// a shared backing this spans every gateway instance; with a local backing it
// covers this process only. Either way it is best effort: records expire on
// their TTL and an unreachable backing reads as empty.
func (g *Gateway) members(ctx context.Context, roomID string) []core.RoomMember {
	keys := g.cache.Keys(ctx, memberPrefix(roomID))
	members := make([]core.RoomMember, 0, len(keys))
	for _, key := range keys {
		var m core.RoomMember
		if g.cache.Get(ctx, key, &m) {
			members = append(members, m)
		}
	}
	return members
}
