//go:build integration

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

type RedisRevocationSuite struct {
	suite.Suite
	container *tcredis.RedisContainer
	client    *redis.Client
	list      *RedisRevocationList
}

func TestRedisRevocationSuite(t *testing.T) {
	suite.Run(t, new(RedisRevocationSuite))
}

func (s *RedisRevocationSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	s.Require().NoError(err)
	s.container = container

	url, err := container.ConnectionString(ctx)
	s.Require().NoError(err)

	client, err := OpenRedis(ctx, url)
	s.Require().NoError(err)
	s.client = client
	s.list = NewRedisRevocationList(client)
}

func (s *RedisRevocationSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *RedisRevocationSuite) SetupTest() {
	s.Require().NoError(s.client.FlushAll(context.Background()).Err())
}

func (s *RedisRevocationSuite) TestRevokedTokenIsReported() {
	ctx := context.Background()

	revoked, err := s.list.IsRevoked(ctx, "jti-1")
	s.Require().NoError(err)
	s.False(revoked)

	s.Require().NoError(s.list.Revoke(ctx, "jti-1", time.Minute))

	revoked, err = s.list.IsRevoked(ctx, "jti-1")
	s.Require().NoError(err)
	s.True(revoked)

	ttl, err := s.client.TTL(ctx, revokedTokenKeyPrefix+"jti-1").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *RedisRevocationSuite) TestEmptyIDIsNeverRevoked() {
	revoked, err := s.list.IsRevoked(context.Background(), "")
	s.Require().NoError(err)
	s.False(revoked)
	s.Error(s.list.Revoke(context.Background(), "", time.Minute))
}

func (s *RedisRevocationSuite) TestPing() {
	s.NoError(s.list.Ping(context.Background()))
}
