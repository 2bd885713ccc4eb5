package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userPresenceKey = "jamfm:presence:%d"          // String: 用户在线心跳 key
	groupOnlineSet  = "jamfm:group:%s:online"      // Set: 分组在线用户集合
	presenceTTL     = 60 * time.Second             // 心跳过期时间 60秒
	onlineSetTTL    = 24 * time.Hour
)

// PresenceCache 在线状态镜像。
// 权威在线状态在 Hub 的连接表里，这里只把它镜像到 Redis，
// 供 REST 查询和同集群的其他服务读取，不参与领域决策。
type PresenceCache struct {
	client *redis.Client
}

// NewPresenceCache 创建在线状态缓存
func NewPresenceCache() *PresenceCache {
	return &PresenceCache{client: RedisClient}
}

// Heartbeat 刷新用户在线心跳，groupIDs 为用户当前所在的全部分组
func (c *PresenceCache) Heartbeat(ctx context.Context, userID int64, groupIDs []string) error {
	if c.client == nil {
		return nil
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, fmt.Sprintf(userPresenceKey, userID), time.Now().UnixMilli(), presenceTTL)
	for _, groupID := range groupIDs {
		setKey := fmt.Sprintf(groupOnlineSet, groupID)
		pipe.SAdd(ctx, setKey, userID)
		pipe.Expire(ctx, setKey, onlineSetTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// SetOffline 用户下线，清除心跳并移出所在分组的在线集合
func (c *PresenceCache) SetOffline(ctx context.Context, userID int64, groupIDs []string) error {
	if c.client == nil {
		return nil
	}

	pipe := c.client.Pipeline()
	pipe.Del(ctx, fmt.Sprintf(userPresenceKey, userID))
	for _, groupID := range groupIDs {
		pipe.SRem(ctx, fmt.Sprintf(groupOnlineSet, groupID), userID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// DropGroup 分组销毁时清理在线集合
func (c *PresenceCache) DropGroup(ctx context.Context, groupID string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, fmt.Sprintf(groupOnlineSet, groupID)).Err()
}

// OnlineCount 返回分组内仍有有效心跳的用户数，顺带清理过期成员
func (c *PresenceCache) OnlineCount(ctx context.Context, groupID string) (int, error) {
	if c.client == nil {
		return 0, nil
	}

	setKey := fmt.Sprintf(groupOnlineSet, groupID)
	members, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read online set: %w", err)
	}

	online := 0
	var expired []interface{}
	for _, member := range members {
		exists, err := c.client.Exists(ctx, "jamfm:presence:"+member).Result()
		if err != nil {
			continue
		}
		if exists > 0 {
			online++
		} else {
			expired = append(expired, member)
		}
	}

	// 清理心跳已过期但还留在集合里的用户
	if len(expired) > 0 {
		c.client.SRem(ctx, setKey, expired...)
	}
	return online, nil
}

// IsOnline 用户当前是否有有效心跳
func (c *PresenceCache) IsOnline(ctx context.Context, userID int64) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	exists, err := c.client.Exists(ctx, fmt.Sprintf(userPresenceKey, userID)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
