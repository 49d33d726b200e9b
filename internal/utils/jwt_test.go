package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// JWTTestSuite JWT工具测试套件
type JWTTestSuite struct {
	suite.Suite
	manager *JWTManager
}

func (suite *JWTTestSuite) SetupTest() {
	suite.manager = NewJWTManager(
		"test-secret-key",
		1*time.Hour,    // access token expiry
		7*24*time.Hour, // refresh token expiry
	)
}

// 测试生成访问令牌
func (suite *JWTTestSuite) TestGenerateAccessToken() {
	token, err := suite.manager.GenerateAccessToken(123, "testuser")
	suite.NoError(err)
	suite.NotEmpty(token)
}

// 测试验证令牌
func (suite *JWTTestSuite) TestValidateToken() {
	token, _ := suite.manager.GenerateAccessToken(789, "validuser")

	claims, err := suite.manager.ValidateToken(token)
	suite.NoError(err)
	suite.NotNil(claims)
	suite.Equal(uint(789), claims.UserID)
	suite.Equal("validuser", claims.Username)
	suite.Equal("puzzle-party", claims.Issuer)
}

// 测试验证无效令牌
func (suite *JWTTestSuite) TestValidateInvalidToken() {
	claims, err := suite.manager.ValidateToken("invalid.token.format")
	suite.Error(err)
	suite.Nil(claims)

	// 错误的签名
	wrongManager := NewJWTManager("wrong-secret", 1*time.Hour, 24*time.Hour)
	token, _ := wrongManager.GenerateAccessToken(1, "user")
	claims, err = suite.manager.ValidateToken(token)
	suite.Error(err)
	suite.Nil(claims)
}

// 测试过期令牌
func (suite *JWTTestSuite) TestExpiredToken() {
	expiredManager := NewJWTManager("test-secret-key", -1*time.Hour, -1*time.Hour)
	token, _ := expiredManager.GenerateAccessToken(111, "expired")

	claims, err := suite.manager.ValidateToken(token)
	suite.Error(err)
	suite.Nil(claims)
}

// 测试令牌类型
func (suite *JWTTestSuite) TestTokenTypes() {
	accessToken, _ := suite.manager.GenerateAccessToken(333, "user")
	accessClaims, _ := suite.manager.ValidateToken(accessToken)
	suite.Equal("access", accessClaims.TokenType)

	refreshToken, _ := suite.manager.GenerateRefreshToken(333, "user")
	refreshClaims, _ := suite.manager.ValidateToken(refreshToken)
	suite.Equal("refresh", refreshClaims.TokenType)
}

// 测试刷新访问令牌
func (suite *JWTTestSuite) TestRefreshAccessToken() {
	refreshToken, _ := suite.manager.GenerateRefreshToken(222, "refreshuser")

	newAccessToken, err := suite.manager.RefreshAccessToken(refreshToken)
	suite.NoError(err)
	suite.NotEmpty(newAccessToken)

	claims, err := suite.manager.ValidateToken(newAccessToken)
	suite.NoError(err)
	suite.Equal(uint(222), claims.UserID)
	suite.Equal("refreshuser", claims.Username)
	suite.Equal("access", claims.TokenType)
}

// 测试无效的刷新令牌
func (suite *JWTTestSuite) TestRefreshWithInvalidToken() {
	// 访问令牌不能用来刷新
	accessToken, _ := suite.manager.GenerateAccessToken(1, "user")
	newToken, err := suite.manager.RefreshAccessToken(accessToken)
	suite.Error(err)
	suite.Empty(newToken)

	newToken, err = suite.manager.RefreshAccessToken("invalid.token")
	suite.Error(err)
	suite.Empty(newToken)
}

// 测试令牌的标准声明
func (suite *JWTTestSuite) TestStandardClaims() {
	token, _ := suite.manager.GenerateAccessToken(1, "user")
	claims, _ := suite.manager.ValidateToken(token)

	suite.NotNil(claims.IssuedAt)
	suite.NotNil(claims.ExpiresAt)
	suite.Greater(claims.ExpiresAt.Unix(), claims.IssuedAt.Unix())
}

func TestJWTSuite(t *testing.T) {
	suite.Run(t, new(JWTTestSuite))
}
