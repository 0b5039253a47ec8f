package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/suite"
)

type RedisCacheTestSuite struct {
	suite.Suite
	mock  redismock.ClientMock
	cache *RedisCache
}

func (s *RedisCacheTestSuite) SetupTest() {
	db, mock := redismock.NewClientMock()
	s.mock = mock
	s.cache = NewRedisCacheFromClient(db, time.Hour)
}

func (s *RedisCacheTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

func (s *RedisCacheTestSuite) TestGet_Hit() {
	key := Key("reasoner", "openai", "410 U.S. 113")
	s.mock.ExpectGet(key).SetVal(`{"isValid":true}`)

	data, ok := s.cache.Get(key)
	s.True(ok)
	s.JSONEq(`{"isValid":true}`, string(data))
}

func (s *RedisCacheTestSuite) TestGet_MissAndErrorAreMisses() {
	s.mock.ExpectGet("missing").RedisNil()
	_, ok := s.cache.Get("missing")
	s.False(ok)

	s.mock.ExpectGet("broken").SetErr(errors.New("connection reset"))
	_, ok = s.cache.Get("broken")
	s.False(ok)
}

func (s *RedisCacheTestSuite) TestSet_DefaultTTL() {
	s.mock.ExpectSet("k", []byte("v"), time.Hour).SetVal("OK")
	s.NoError(s.cache.Set("k", []byte("v"), 0))

	s.mock.ExpectSet("k", []byte("v"), time.Minute).SetVal("OK")
	s.NoError(s.cache.Set("k", []byte("v"), time.Minute))
}

func (s *RedisCacheTestSuite) TestSet_Error() {
	s.mock.ExpectSet("k", []byte("v"), time.Hour).SetErr(errors.New("read only replica"))
	err := s.cache.Set("k", []byte("v"), 0)
	s.Error(err)
	s.Contains(err.Error(), "redis set")
}

func (s *RedisCacheTestSuite) TestDelete() {
	s.mock.ExpectDel("k").SetVal(1)
	s.NoError(s.cache.Delete("k"))

	s.mock.ExpectDel("gone").RedisNil()
	s.NoError(s.cache.Delete("gone"))
}

func (s *RedisCacheTestSuite) TestClear_OnlyPrefixedKeys() {
	keys := []string{KeyPrefix + "a", KeyPrefix + "b"}
	s.mock.ExpectScan(0, KeyPrefix+"*", 500).SetVal(keys, 0)
	s.mock.ExpectDel(keys...).SetVal(2)

	s.NoError(s.cache.Clear())
}

func (s *RedisCacheTestSuite) TestClear_ScanError() {
	s.mock.ExpectScan(0, KeyPrefix+"*", 500).SetErr(errors.New("timeout"))
	s.Error(s.cache.Clear())
}

func TestRedisCacheSuite(t *testing.T) {
	suite.Run(t, new(RedisCacheTestSuite))
}
